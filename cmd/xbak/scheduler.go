package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/ezhttp"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/ossignal"
	"github.com/function61/gokit/osutil"
	"github.com/function61/gokit/stopper"
	"github.com/function61/gokit/systemdinstaller"
	"github.com/mysqlkit/xbak/pkg/xbconfig"
	"github.com/mysqlkit/xbak/pkg/xbstorage"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const scheduleRetryInterval = 1 * time.Minute

func runScheduler(ctx context.Context, logger *log.Logger, stop *stopper.Stopper) {
	defer stop.Done()
	logl := logex.Levels(logger)

	logl.Info.Println("started")
	defer logl.Info.Println("stopped")

	for {
		now := time.Now()

		conf, err := xbconfig.ReadFromEnvOrFile()
		var next time.Time
		if err == nil {
			next, err = nextBackupTime(conf, now)
		}
		if err != nil {
			// a daemon that stops scheduling but keeps running would look alive
			// while backups silently pile up missed; keep retrying so a fixed
			// config gets picked up
			logl.Error.Printf("%v (retrying in %s)", err, scheduleRetryInterval)

			select {
			case <-stop.Signal:
				return
			case <-time.After(scheduleRetryInterval):
			}
			continue
		}

		logl.Info.Printf("next backup will be at: %s", next.Format(time.RFC3339))

		select {
		case <-stop.Signal:
			return
		case <-time.After(next.Sub(now)):
			logl.Info.Println("it's backup time!")

			if err := runScheduledBackup(ctx, conf, logger); err != nil {
				logl.Error.Printf("error: %v", err)
			} else {
				logl.Info.Println("backup succeeded :)")
			}
		}
	}
}

// nextBackupTime resolves the configured schedule: a cron expression when set,
// else the daily UTC wall-clock time
func nextBackupTime(conf *xbconfig.Config, now time.Time) (time.Time, error) {
	if conf.ScheduleCron != "" {
		schedule, err := cron.ParseStandard(conf.ScheduleCron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid schedule_cron: %w", err)
		}

		return schedule.Next(now), nil
	}

	wallClock, err := time.Parse("15:04", conf.ScheduleTimeUtc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule_time_utc: %w", err)
	}

	next := time.Date(
		now.Year(),
		now.Month(),
		now.Day(),
		wallClock.Hour(),
		wallClock.Minute(),
		0,
		0,
		time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next, nil
}

func runScheduledBackup(ctx context.Context, conf *xbconfig.Config, logger *log.Logger) error {
	orchestrator, _, err := orchestratorFromConfig(nil, logger)
	if err != nil {
		return err
	}

	if SupportsSettingPriorities {
		if err := SetLowCpuPriority(); err != nil {
			return err
		}
	}

	if _, err := orchestrator.BaseBackup(ctx); err != nil {
		return err
	}

	if conf.Storage != nil {
		storage, err := xbstorage.StorageFromConfig(conf.Storage, logger)
		if err != nil {
			return err
		}

		if _, err := orchestrator.ArchiveAndStore(ctx, storage); err != nil {
			return err
		}
	}

	if conf.AlertManager != nil {
		if err := deadMansSwitchCheckin(ctx, conf.AlertManager.BaseUrl); err != nil {
			return fmt.Errorf("alertmanager checkin: %w", err)
		}
	}

	return nil
}

type deadMansSwitchCheckinRequest struct {
	Subject string `json:"subject"`
	TTL     string `json:"ttl"`
}

// tells alertmanager we're still alive. the TTL is a bit over a day so one
// missed nightly backup raises the alert
func deadMansSwitchCheckin(ctx context.Context, baseUrl string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, ezhttp.DefaultTimeout10s)
	defer cancel()

	_, err = ezhttp.Post(
		reqCtx,
		baseUrl+"/deadmansswitch/checkin",
		ezhttp.SendJson(&deadMansSwitchCheckinRequest{
			Subject: "xbak " + hostname,
			TTL:     "25h",
		}))

	return err
}

func schedulerEntry() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Scheduled backup related commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run a scheduler to periodically take backups",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()
			logl := logex.Levels(logex.Prefix("main", rootLogger))

			workers := stopper.NewManager()

			go runScheduler(context.Background(), logex.Prefix("scheduler", rootLogger), workers.Stopper())

			logl.Info.Printf("Started %s", dynversion.Version)
			logl.Info.Printf("Got %s; stopping", <-ossignal.InterruptOrTerminate())

			workers.StopAllWorkersAndWait()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install-systemd-service-file",
		Short: "Install scheduled backups as a system service",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			systemdHints, err := systemdinstaller.InstallSystemdServiceFile(
				"xbak",
				[]string{"scheduler", "run"},
				"xbak scheduled backups")
			osutil.ExitIfError(err)

			fmt.Println(systemdHints)
		},
	})

	return cmd
}
