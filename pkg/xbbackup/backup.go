// Package xbbackup sequences the external invocations that make up each
// operation: base/incremental backup, prepare and restore. xtrabackup does the
// actual work; this package decides what to run against which directories and
// keeps the chain ledger honest.
package xbbackup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/function61/gokit/logex"
	"github.com/mysqlkit/xbak/pkg/xbchain"
	"github.com/mysqlkit/xbak/pkg/xbcmd"
	"github.com/mysqlkit/xbak/pkg/xbconfig"
	"github.com/mysqlkit/xbak/pkg/xbtypes"
)

const timestampFormat = "2006-01-02-15-04-05"

var ErrRemoteTargetIncomplete = errors.New("remote restore needs both target user and target host")

type Orchestrator struct {
	conf   xbconfig.Config
	ledger *xbchain.Ledger
	runner xbcmd.Runner
	logl   *logex.Leveled
	now    func() time.Time
}

func New(conf xbconfig.Config, runner xbcmd.Runner, logger *log.Logger) (*Orchestrator, error) {
	ledger, err := xbchain.Open(conf.BackupDir, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		conf:   conf,
		ledger: ledger,
		runner: runner,
		logl:   logex.Levels(logger),
		now:    time.Now,
	}, nil
}

func (o *Orchestrator) Ledger() *xbchain.Ledger {
	return o.ledger
}

// BaseBackup takes a full backup. On success the previous chain (old base +
// its incrementals) is pruned, since the new base supersedes it.
func (o *Orchestrator) BaseBackup(ctx context.Context) (string, error) {
	backup := xbtypes.Backup{
		Started: o.now(),
		Kind:    xbtypes.KindBase,
	}
	backup.Dir = o.targetDir(backup)

	o.logl.Info.Printf("base backup -> %s", backup.Dir)

	if err := o.runner.Run(ctx, xbcmd.Backup(
		o.conf.MysqlUser,
		o.conf.MysqlPassword,
		backup.Dir,
	)); err != nil {
		return "", fmt.Errorf("base backup: %w", err)
	}

	if err := o.ledger.RecordBase(backup); err != nil {
		return "", err
	}

	return backup.Dir, nil
}

// IncrementalBackup takes an incremental on top of the newest chain entry.
// With no chain at all it degrades to a base backup.
func (o *Orchestrator) IncrementalBackup(ctx context.Context) (string, error) {
	basedir, err := o.ledger.LatestBasedir()
	if errors.Is(err, xbchain.ErrNoBaseBackup) {
		o.logl.Info.Println("no base backup yet, taking base backup instead")
		return o.BaseBackup(ctx)
	}
	if err != nil {
		return "", err
	}

	backup := xbtypes.Backup{
		Started: o.now(),
		Kind:    xbtypes.KindIncremental,
	}
	backup.Dir = o.targetDir(backup)

	o.logl.Info.Printf("incremental backup -> %s (basedir %s)", backup.Dir, basedir)

	if err := o.runner.Run(ctx, xbcmd.IncrementalBackup(
		o.conf.MysqlUser,
		o.conf.MysqlPassword,
		backup.Dir,
		basedir,
	)); err != nil {
		return "", fmt.Errorf("incremental backup: %w", err)
	}

	if err := o.ledger.RecordIncremental(backup); err != nil {
		return "", err
	}

	return backup.Dir, nil
}

// Prepare applies redo logs to the base and layers each incremental on top, in
// order. Every step except the very last runs with --apply-log-only so that
// uncommitted transactions stay un-rolled-back until the whole chain is in.
// Returns the restorable base directory.
func (o *Orchestrator) Prepare(ctx context.Context) (string, error) {
	base, err := o.ledger.Base()
	if err != nil {
		return "", err
	}

	incrementals, err := o.ledger.Incrementals()
	if err != nil {
		return "", err
	}

	started := o.now()
	o.logl.Info.Printf("preparing %s with %d incremental(s)", base, len(incrementals))

	if err := o.runner.Run(ctx, xbcmd.Prepare(base, true)); err != nil {
		return "", fmt.Errorf("prepare base: %w", err)
	}

	for idx, incremental := range incrementals {
		last := idx == len(incrementals)-1

		if err := o.runner.Run(ctx, xbcmd.ApplyIncremental(base, incremental, !last)); err != nil {
			return "", fmt.Errorf("apply incremental %s: %w", incremental, err)
		}
	}

	o.logl.Debug.Printf("prepare completed in %s", time.Since(started))

	return base, nil
}

type RestoreTarget struct {
	Local      bool
	TargetUser string
	TargetHost string
}

// Restore prepares the chain and syncs the restorable base over the target's
// data directory, stopping the database server for the duration.
func (o *Orchestrator) Restore(ctx context.Context, target RestoreTarget) error {
	if !target.Local && (target.TargetUser == "" || target.TargetHost == "") {
		return ErrRemoteTargetIncomplete
	}

	base, err := o.Prepare(ctx)
	if err != nil {
		return err
	}

	// trailing slash: sync directory contents, not the directory itself
	src := base + "/"
	dest := o.conf.DataDir

	run := o.runner.Run
	if !target.Local {
		dest = fmt.Sprintf("%s@%s:%s", target.TargetUser, target.TargetHost, o.conf.DataDir)
		run = func(ctx context.Context, inv xbcmd.Invocation) error {
			return o.runner.Run(ctx, xbcmd.RemoteShell(target.TargetUser, target.TargetHost, inv))
		}
	}

	o.logl.Info.Printf("restoring %s -> %s", src, dest)

	if err := run(ctx, xbcmd.ServiceStop(o.conf.MysqlService)); err != nil {
		return fmt.Errorf("stop %s: %w", o.conf.MysqlService, err)
	}

	// rsync itself always runs on this host, even for remote restores
	if err := o.runner.Run(ctx, xbcmd.Rsync(o.conf.RsyncFlags, src, dest)); err != nil {
		return fmt.Errorf("sync backup: %w", err)
	}

	if err := run(ctx, xbcmd.ChownRecursive("mysql:mysql", o.conf.DataDir)); err != nil {
		return fmt.Errorf("chown data dir: %w", err)
	}

	if err := run(ctx, xbcmd.ServiceRestart(o.conf.MysqlService)); err != nil {
		return fmt.Errorf("restart %s: %w", o.conf.MysqlService, err)
	}

	o.logl.Info.Println("restore completed")

	return nil
}

func (o *Orchestrator) targetDir(backup xbtypes.Backup) string {
	suffix := map[xbtypes.BackupKind]string{
		xbtypes.KindBase:        "base",
		xbtypes.KindIncremental: "inc",
	}[backup.Kind]

	return filepath.Join(
		o.conf.BackupDir,
		fmt.Sprintf("%s-%s", backup.Started.Format(timestampFormat), suffix))
}
