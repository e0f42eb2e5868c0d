package main

import (
	"context"
	"fmt"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/mysqlkit/xbak/pkg/xbbackup"
	"github.com/spf13/cobra"
)

func prepareEntry() *cobra.Command {
	overrides := &overrideFlags{}

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Makes the backup chain restorable by applying redo logs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func(ctx context.Context) error {
				orchestrator, _, err := orchestratorFromConfig(overrides, rootLogger)
				if err != nil {
					return err
				}

				base, err := orchestrator.Prepare(ctx)
				if err != nil {
					return err
				}

				fmt.Println(base)
				return nil
			}(osutil.CancelOnInterruptOrTerminate(rootLogger)))
		},
	}

	overrides.register(cmd)

	return cmd
}

func restoreEntry() *cobra.Command {
	local := false
	targetUser := ""
	targetHost := ""
	overrides := &overrideFlags{}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Prepares the chain and restores it to this host or a remote one",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func(ctx context.Context) error {
				orchestrator, _, err := orchestratorFromConfig(overrides, rootLogger)
				if err != nil {
					return err
				}

				return orchestrator.Restore(ctx, xbbackup.RestoreTarget{
					Local:      local,
					TargetUser: targetUser,
					TargetHost: targetHost,
				})
			}(osutil.CancelOnInterruptOrTerminate(rootLogger)))
		},
	}

	cmd.Flags().BoolVarP(&local, "local", "", local, "Restore into this host's data directory")
	cmd.Flags().StringVarP(&targetUser, "target-user", "", targetUser, "ssh user on the target host")
	cmd.Flags().StringVarP(&targetHost, "target-host", "", targetHost, "Target host to restore to")
	overrides.register(cmd)

	return cmd
}
