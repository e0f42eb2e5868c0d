package xbbackup

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mysqlkit/xbak/pkg/xbchain"
	"github.com/mysqlkit/xbak/pkg/xbcmd"
	"github.com/mysqlkit/xbak/pkg/xbconfig"
)

type fakeRunner struct {
	invocations []xbcmd.Invocation
	failNext    error
}

func (f *fakeRunner) Run(ctx context.Context, inv xbcmd.Invocation) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}

	f.invocations = append(f.invocations, inv)
	return nil
}

func (f *fakeRunner) rendered() []string {
	lines := []string{}
	for _, inv := range f.invocations {
		lines = append(lines, strings.Join(inv.Argv(), " "))
	}
	return lines
}

func testOrchestrator(t *testing.T) (*Orchestrator, *fakeRunner) {
	t.Helper()

	conf := *xbconfig.DefaultConfig("")
	conf.BackupDir = t.TempDir()
	conf.MysqlPassword = "hunter2"

	runner := &fakeRunner{}

	orchestrator, err := New(conf, runner, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// deterministic timestamps, one minute apart per call
	tick := 0
	orchestrator.now = func() time.Time {
		tick++
		return time.Date(2020, 3, 1, 12, tick, 0, 0, time.UTC)
	}

	return orchestrator, runner
}

func expectInvocations(t *testing.T, runner *fakeRunner, expected []string) {
	t.Helper()

	got := runner.rendered()
	if len(got) != len(expected) {
		t.Fatalf("expected %d invocations, got %d:\n%s", len(expected), len(got), strings.Join(got, "\n"))
	}
	for idx := range expected {
		if got[idx] != expected[idx] {
			t.Errorf("invocation %d:\n  got  %q\n  want %q", idx, got[idx], expected[idx])
		}
	}
}

func TestBaseBackup(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)

	dir, err := orchestrator.BaseBackup(context.Background())
	if err != nil {
		t.Fatalf("BaseBackup: %v", err)
	}

	if !strings.HasSuffix(dir, "/2020-03-01-12-01-00-base") {
		t.Errorf("unexpected target dir %q", dir)
	}

	expectInvocations(t, runner, []string{
		"xtrabackup --user=root --password=hunter2 --backup --target-dir=" + dir,
	})

	base, err := orchestrator.Ledger().Base()
	if err != nil {
		t.Fatalf("base not recorded: %v", err)
	}
	if base != dir {
		t.Errorf("ledger base = %q, want %q", base, dir)
	}
}

func TestBaseBackupFailureLeavesLedgerUntouched(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)
	runner.failNext = errors.New("xtrabackup: exit status 1")

	if _, err := orchestrator.BaseBackup(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if _, err := orchestrator.Ledger().Base(); !errors.Is(err, xbchain.ErrNoBaseBackup) {
		t.Errorf("failed backup must not be recorded, got %v", err)
	}
}

func TestIncrementalBackupFallsBackToBase(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)

	dir, err := orchestrator.IncrementalBackup(context.Background())
	if err != nil {
		t.Fatalf("IncrementalBackup: %v", err)
	}

	if !strings.HasSuffix(dir, "-base") {
		t.Errorf("expected base backup dir, got %q", dir)
	}
	if len(runner.invocations) != 1 || hasArg(runner.invocations[0], "--incremental-basedir") {
		t.Errorf("expected a plain base backup, got %v", runner.rendered())
	}
}

func TestIncrementalBackupChain(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)
	ctx := context.Background()

	baseDir, err := orchestrator.BaseBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// first incremental layers on the base
	inc1, err := orchestrator.IncrementalBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !argEquals(runner.invocations[1], "--incremental-basedir="+baseDir) {
		t.Errorf("first incremental should use base as basedir: %v", runner.rendered()[1])
	}

	// second incremental layers on the first
	if _, err := orchestrator.IncrementalBackup(ctx); err != nil {
		t.Fatal(err)
	}
	if !argEquals(runner.invocations[2], "--incremental-basedir="+inc1) {
		t.Errorf("second incremental should use first as basedir: %v", runner.rendered()[2])
	}
}

func TestPrepareAppliesChainInOrder(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)
	ctx := context.Background()

	baseDir, err := orchestrator.BaseBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	inc1, err := orchestrator.IncrementalBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	inc2, err := orchestrator.IncrementalBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	runner.invocations = nil

	prepared, err := orchestrator.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared != baseDir {
		t.Errorf("prepared dir = %q, want base %q", prepared, baseDir)
	}

	expectInvocations(t, runner, []string{
		"xtrabackup --prepare --apply-log-only --target-dir=" + baseDir,
		"xtrabackup --prepare --apply-log-only --target-dir=" + baseDir + " --incremental-dir=" + inc1,
		// last incremental must NOT use --apply-log-only
		"xtrabackup --prepare --target-dir=" + baseDir + " --incremental-dir=" + inc2,
	})
}

func TestPrepareWithoutChain(t *testing.T) {
	orchestrator, _ := testOrchestrator(t)

	if _, err := orchestrator.Prepare(context.Background()); !errors.Is(err, xbchain.ErrNoBaseBackup) {
		t.Errorf("expected ErrNoBaseBackup, got %v", err)
	}
}

func TestRestoreLocal(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)
	ctx := context.Background()

	baseDir, err := orchestrator.BaseBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	runner.invocations = nil

	if err := orchestrator.Restore(ctx, RestoreTarget{Local: true}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	expectInvocations(t, runner, []string{
		"xtrabackup --prepare --apply-log-only --target-dir=" + baseDir,
		"service mysql stop",
		"rsync -avrP " + baseDir + "/ /var/lib/mysql",
		"chown -R mysql:mysql /var/lib/mysql",
		"service mysql restart",
	})
}

func TestRestoreRemote(t *testing.T) {
	orchestrator, runner := testOrchestrator(t)
	ctx := context.Background()

	baseDir, err := orchestrator.BaseBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	runner.invocations = nil

	if err := orchestrator.Restore(ctx, RestoreTarget{TargetUser: "deploy", TargetHost: "db2"}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	expectInvocations(t, runner, []string{
		"xtrabackup --prepare --apply-log-only --target-dir=" + baseDir,
		"ssh deploy@db2 service mysql stop",
		"rsync -avrP " + baseDir + "/ deploy@db2:/var/lib/mysql",
		"ssh deploy@db2 chown -R mysql:mysql /var/lib/mysql",
		"ssh deploy@db2 service mysql restart",
	})
}

func TestRestoreRemoteRequiresUserAndHost(t *testing.T) {
	orchestrator, _ := testOrchestrator(t)

	err := orchestrator.Restore(context.Background(), RestoreTarget{TargetUser: "deploy"})
	if !errors.Is(err, ErrRemoteTargetIncomplete) {
		t.Errorf("expected ErrRemoteTargetIncomplete, got %v", err)
	}
}

func hasArg(inv xbcmd.Invocation, prefix string) bool {
	for _, arg := range inv.Args {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

func argEquals(inv xbcmd.Invocation, expected string) bool {
	for _, arg := range inv.Args {
		if arg == expected {
			return true
		}
	}
	return false
}
