package main

import (
	"context"
	"fmt"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func backupEntry() *cobra.Command {
	backupType := "base"
	overrides := &overrideFlags{}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Takes a backup (base or incremental) with xtrabackup",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func(ctx context.Context) error {
				orchestrator, _, err := orchestratorFromConfig(overrides, rootLogger)
				if err != nil {
					return err
				}

				if SupportsSettingPriorities {
					if err := SetLowCpuPriority(); err != nil {
						return err
					}
				}

				switch backupType {
				case "base":
					_, err = orchestrator.BaseBackup(ctx)
				case "incr":
					_, err = orchestrator.IncrementalBackup(ctx)
				default:
					err = fmt.Errorf("invalid backup type: %s (want base|incr)", backupType)
				}

				return err
			}(osutil.CancelOnInterruptOrTerminate(rootLogger)))
		},
	}

	cmd.Flags().StringVarP(&backupType, "type", "t", backupType, "Backup type: base or incr")
	overrides.register(cmd)

	return cmd
}
