package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/mysqlkit/xbak/pkg/xbconfig"
	"github.com/mysqlkit/xbak/pkg/xbstorage"
	"github.com/spf13/cobra"
)

func storageEntry() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Offsite storage related commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put",
		Short: "Prepare the chain, archive it and upload to storage",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func(ctx context.Context) error {
				orchestrator, conf, err := orchestratorFromConfig(nil, rootLogger)
				if err != nil {
					return err
				}

				storage, err := xbstorage.StorageFromConfig(conf.Storage, rootLogger)
				if err != nil {
					return err
				}

				key, err := orchestrator.ArchiveAndStore(ctx, storage)
				if err != nil {
					return err
				}

				fmt.Println(key)
				return nil
			}(osutil.CancelOnInterruptOrTerminate(rootLogger)))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Get backup archive from storage (to stdout)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func(ctx context.Context, id string) error {
				storage, err := storageFromMainConfig()
				if err != nil {
					return err
				}

				body, err := storage.Get(ctx, id)
				if err != nil {
					return err
				}
				defer body.Close()

				_, err = io.Copy(os.Stdout, body)
				return err
			}(osutil.CancelOnInterruptOrTerminate(nil), args[0]))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls [hostname]",
		Short: "List backup archives in storage for a host",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func(ctx context.Context, hostname string) error {
				storage, err := storageFromMainConfig()
				if err != nil {
					return err
				}

				backups, err := storage.List(ctx, hostname)
				if err != nil {
					return err
				}

				for _, backup := range backups {
					fmt.Println(backup.ID)
				}

				return nil
			}(osutil.CancelOnInterruptOrTerminate(nil), args[0]))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls-hosts",
		Short: "List hosts that have backup archives",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func(ctx context.Context) error {
				storage, err := storageFromMainConfig()
				if err != nil {
					return err
				}

				hosts, err := storage.ListHosts(ctx)
				if err != nil {
					return err
				}

				for _, host := range hosts {
					fmt.Println(host)
				}

				return nil
			}(osutil.CancelOnInterruptOrTerminate(nil)))
		},
	})

	return cmd
}

func storageFromMainConfig() (xbstorage.Storage, error) {
	conf, err := xbconfig.ReadFromEnvOrFile()
	if err != nil {
		return nil, err
	}

	return xbstorage.StorageFromConfig(conf.Storage, logex.StandardLogger())
}
