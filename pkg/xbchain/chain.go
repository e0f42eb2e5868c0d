// Package xbchain tracks the backup chain on disk: which base backup exists,
// which incrementals are layered on it and in which order. The ledger files
// are the source of truth for prepare/restore; the manifest carries display
// metadata (timestamps, checksums) on top.
package xbchain

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
	"github.com/mysqlkit/xbak/pkg/xbtypes"
)

const (
	baseLogFilename  = "base.log"
	incrLogFilename  = "incr.log"
	manifestFilename = "manifest.json"
)

var ErrNoBaseBackup = errors.New("no base backup recorded")

type Ledger struct {
	dir  string
	logl *logex.Leveled
}

func Open(dir string, logger *log.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	return &Ledger{dir, logex.Levels(logger)}, nil
}

// Base returns the directory of the most recent base backup
func (l *Ledger) Base() (string, error) {
	bases, err := l.readLog(baseLogFilename)
	if err != nil {
		return "", err
	}
	if len(bases) == 0 {
		return "", ErrNoBaseBackup
	}

	return bases[len(bases)-1], nil
}

// Incrementals returns incremental backup directories, oldest first
func (l *Ledger) Incrementals() ([]string, error) {
	return l.readLog(incrLogFilename)
}

// LatestBasedir returns the directory the next incremental backup must use as
// its --incremental-basedir: the newest incremental if one exists, else the base.
func (l *Ledger) LatestBasedir() (string, error) {
	incrementals, err := l.Incrementals()
	if err != nil {
		return "", err
	}
	if len(incrementals) > 0 {
		return incrementals[len(incrementals)-1], nil
	}

	return l.Base()
}

// RecordBase prunes the previous chain (its directories included) and starts a
// new one. A fresh base makes the old base and its incrementals unrestorable
// anyway, so keeping them would only waste disk.
func (l *Ledger) RecordBase(backup xbtypes.Backup) error {
	stale := []string{}

	if base, err := l.Base(); err == nil {
		stale = append(stale, base)
	}
	incrementals, err := l.Incrementals()
	if err != nil {
		return err
	}
	stale = append(stale, incrementals...)

	for _, dir := range stale {
		if dir == backup.Dir {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			l.logl.Error.Printf("pruning %s: %v", dir, err)
		}
	}

	if err := os.Remove(l.path(incrLogFilename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(l.path(baseLogFilename), []byte(backup.Dir+"\n"), 0644); err != nil {
		return err
	}

	return l.writeManifest([]xbtypes.ChainEntry{l.entryFor(backup)})
}

// RecordIncremental appends to the chain
func (l *Ledger) RecordIncremental(backup xbtypes.Backup) error {
	// snapshot before touching incr.log: with no manifest present Chain()
	// reconstructs from the logs, and must not see the entry being added
	entries, err := l.Chain()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(l.path(incrLogFilename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(backup.Dir + "\n"); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return l.writeManifest(append(entries, l.entryFor(backup)))
}

// Chain returns the full chain for display, base first
func (l *Ledger) Chain() ([]xbtypes.ChainEntry, error) {
	manifest := manifestDoc{}
	if err := jsonfile.Read(l.path(manifestFilename), &manifest, true); err == nil {
		return manifest.Entries, nil
	}

	// manifest missing (e.g. ledgers written by an older version): reconstruct
	// what we can from the logs
	entries := []xbtypes.ChainEntry{}

	if base, err := l.Base(); err == nil {
		entries = append(entries, xbtypes.ChainEntry{Kind: xbtypes.KindBase, Dir: base})
	}

	incrementals, err := l.Incrementals()
	if err != nil {
		return nil, err
	}
	for _, dir := range incrementals {
		entries = append(entries, xbtypes.ChainEntry{Kind: xbtypes.KindIncremental, Dir: dir})
	}

	return entries, nil
}

type manifestDoc struct {
	Entries []xbtypes.ChainEntry `json:"entries"`
}

func (l *Ledger) writeManifest(entries []xbtypes.ChainEntry) error {
	file, err := os.Create(l.path(manifestFilename))
	if err != nil {
		return err
	}
	defer file.Close()

	return jsonfile.Marshal(file, manifestDoc{Entries: entries})
}

func (l *Ledger) entryFor(backup xbtypes.Backup) xbtypes.ChainEntry {
	checksum, err := CheckpointsChecksum(backup.Dir)
	if err != nil {
		l.logl.Debug.Printf("checkpoints checksum for %s: %v", backup.Dir, err)
	}

	return xbtypes.ChainEntry{
		Kind:     backup.Kind,
		Dir:      backup.Dir,
		Started:  backup.Started,
		Checksum: checksum,
	}
}

func (l *Ledger) readLog(filename string) ([]string, error) {
	content, err := os.ReadFile(l.path(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	dirs := []string{}
	for _, line := range strings.Split(string(content), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			dirs = append(dirs, line)
		}
	}

	return dirs, nil
}

func (l *Ledger) path(filename string) string {
	return filepath.Join(l.dir, filename)
}
