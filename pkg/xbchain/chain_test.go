package xbchain

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mysqlkit/xbak/pkg/xbtypes"
)

func testLedger(t *testing.T) (*Ledger, string) {
	t.Helper()

	dir := t.TempDir()
	ledger, err := Open(dir, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return ledger, dir
}

func mkBackupDir(t *testing.T, root string, name string) xbtypes.Backup {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "xtrabackup_checkpoints"), []byte("to_lsn = 1234\n"), 0644); err != nil {
		t.Fatal(err)
	}

	kind := xbtypes.KindBase
	if strings.HasSuffix(name, "-inc") {
		kind = xbtypes.KindIncremental
	}

	return xbtypes.Backup{Started: time.Now(), Kind: kind, Dir: dir}
}

func TestEmptyLedger(t *testing.T) {
	ledger, _ := testLedger(t)

	if _, err := ledger.Base(); !errors.Is(err, ErrNoBaseBackup) {
		t.Errorf("expected ErrNoBaseBackup, got %v", err)
	}
	if _, err := ledger.LatestBasedir(); !errors.Is(err, ErrNoBaseBackup) {
		t.Errorf("expected ErrNoBaseBackup, got %v", err)
	}

	entries, err := ledger.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty chain, got %d entries", len(entries))
	}
}

func TestRecordBaseAndIncrementals(t *testing.T) {
	ledger, root := testLedger(t)

	base := mkBackupDir(t, root, "a-base")
	if err := ledger.RecordBase(base); err != nil {
		t.Fatalf("RecordBase: %v", err)
	}

	got, err := ledger.Base()
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if got != base.Dir {
		t.Errorf("Base() = %q, want %q", got, base.Dir)
	}

	// first incremental layers on the base
	basedir, err := ledger.LatestBasedir()
	if err != nil {
		t.Fatal(err)
	}
	if basedir != base.Dir {
		t.Errorf("LatestBasedir() = %q, want base %q", basedir, base.Dir)
	}

	inc1 := mkBackupDir(t, root, "b-inc")
	if err := ledger.RecordIncremental(inc1); err != nil {
		t.Fatalf("RecordIncremental: %v", err)
	}

	// second incremental layers on the first
	basedir, err = ledger.LatestBasedir()
	if err != nil {
		t.Fatal(err)
	}
	if basedir != inc1.Dir {
		t.Errorf("LatestBasedir() = %q, want %q", basedir, inc1.Dir)
	}

	inc2 := mkBackupDir(t, root, "c-inc")
	if err := ledger.RecordIncremental(inc2); err != nil {
		t.Fatal(err)
	}

	incrementals, err := ledger.Incrementals()
	if err != nil {
		t.Fatal(err)
	}
	if len(incrementals) != 2 || incrementals[0] != inc1.Dir || incrementals[1] != inc2.Dir {
		t.Errorf("unexpected incrementals order: %v", incrementals)
	}
}

func TestRecordBasePrunesPreviousChain(t *testing.T) {
	ledger, root := testLedger(t)

	oldBase := mkBackupDir(t, root, "a-base")
	oldInc := mkBackupDir(t, root, "b-inc")
	if err := ledger.RecordBase(oldBase); err != nil {
		t.Fatal(err)
	}
	if err := ledger.RecordIncremental(oldInc); err != nil {
		t.Fatal(err)
	}

	newBase := mkBackupDir(t, root, "c-base")
	if err := ledger.RecordBase(newBase); err != nil {
		t.Fatal(err)
	}

	for _, stale := range []string{oldBase.Dir, oldInc.Dir} {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", stale)
		}
	}

	incrementals, err := ledger.Incrementals()
	if err != nil {
		t.Fatal(err)
	}
	if len(incrementals) != 0 {
		t.Errorf("incrementals should be empty after new base, got %v", incrementals)
	}

	got, err := ledger.Base()
	if err != nil {
		t.Fatal(err)
	}
	if got != newBase.Dir {
		t.Errorf("Base() = %q, want %q", got, newBase.Dir)
	}
}

func TestChainCarriesMetadata(t *testing.T) {
	ledger, root := testLedger(t)

	base := mkBackupDir(t, root, "a-base")
	if err := ledger.RecordBase(base); err != nil {
		t.Fatal(err)
	}
	inc := mkBackupDir(t, root, "b-inc")
	if err := ledger.RecordIncremental(inc); err != nil {
		t.Fatal(err)
	}

	entries, err := ledger.Chain()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Kind != xbtypes.KindBase || entries[1].Kind != xbtypes.KindIncremental {
		t.Errorf("unexpected kinds: %s, %s", entries[0].Kind, entries[1].Kind)
	}
	for _, entry := range entries {
		if entry.Checksum == "" {
			t.Errorf("entry %s should have a checkpoints checksum", entry.Dir)
		}
		if entry.Started.IsZero() {
			t.Errorf("entry %s should have a started timestamp", entry.Dir)
		}
	}
}

// ledgers written by older tooling have base.log/incr.log but no manifest;
// recording on top of them must not duplicate entries
func TestRecordIncrementalOnLegacyLedger(t *testing.T) {
	ledger, root := testLedger(t)

	oldBase := mkBackupDir(t, root, "a-base")
	oldInc := mkBackupDir(t, root, "b-inc")
	if err := os.WriteFile(filepath.Join(root, "base.log"), []byte(oldBase.Dir+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "incr.log"), []byte(oldInc.Dir+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	newInc := mkBackupDir(t, root, "c-inc")
	if err := ledger.RecordIncremental(newInc); err != nil {
		t.Fatalf("RecordIncremental: %v", err)
	}

	entries, err := ledger.Chain()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (base, old inc, new inc), got %d", len(entries))
	}

	expectedDirs := []string{oldBase.Dir, oldInc.Dir, newInc.Dir}
	for idx, entry := range entries {
		if entry.Dir != expectedDirs[idx] {
			t.Errorf("entry %d: got %q, want %q", idx, entry.Dir, expectedDirs[idx])
		}
	}

	basedir, err := ledger.LatestBasedir()
	if err != nil {
		t.Fatal(err)
	}
	if basedir != newInc.Dir {
		t.Errorf("LatestBasedir() = %q, want %q", basedir, newInc.Dir)
	}
}

func TestCheckpointsChecksumMissingFile(t *testing.T) {
	checksum, err := CheckpointsChecksum(t.TempDir())
	if err != nil {
		t.Fatalf("missing checkpoints file should not error: %v", err)
	}
	if checksum != "" {
		t.Errorf("expected empty checksum, got %q", checksum)
	}
}
