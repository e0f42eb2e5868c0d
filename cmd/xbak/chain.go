package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/mysqlkit/xbak/pkg/xbtypes"
	"github.com/spf13/cobra"
)

func chainEntry() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Backup chain related commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "Shows the current backup chain, base first",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				orchestrator, _, err := orchestratorFromConfig(nil, logex.StandardLogger())
				if err != nil {
					return err
				}

				entries, err := orchestrator.Ledger().Chain()
				if err != nil {
					return err
				}

				if len(entries) == 0 {
					fmt.Println(color.YellowString("(no backups recorded)"))
					return nil
				}

				for _, entry := range entries {
					fmt.Printf("%s  %s  %s  %s\n",
						kindStyled(entry.Kind),
						startedOrDash(entry.Started),
						checksumOrDash(entry.Checksum),
						entry.Dir)
				}

				return nil
			}())
		},
	})

	return cmd
}

func kindStyled(kind xbtypes.BackupKind) string {
	if kind == xbtypes.KindBase {
		return color.GreenString("%-4s", kind)
	}
	return color.CyanString("%-4s", kind)
}

func startedOrDash(started time.Time) string {
	if started.IsZero() {
		return "-"
	}
	return started.Format(time.RFC3339)
}

func checksumOrDash(checksum string) string {
	if checksum == "" {
		return "-       "
	}
	// manifest.json is user-editable, so don't assume a full-length hash
	if len(checksum) < 8 {
		return checksum
	}
	return checksum[:8]
}
