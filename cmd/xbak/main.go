package main

import (
	"log"
	"os"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/osutil"
	"github.com/mysqlkit/xbak/pkg/xbbackup"
	"github.com/mysqlkit/xbak/pkg/xbcmd"
	"github.com/mysqlkit/xbak/pkg/xbconfig"
	"github.com/spf13/cobra"
)

func main() {
	app := &cobra.Command{
		Use:     os.Args[0],
		Short:   "Orchestrates MySQL physical backups with xtrabackup and rsync",
		Version: dynversion.Version,
	}

	app.AddCommand(backupEntry())
	app.AddCommand(prepareEntry())
	app.AddCommand(restoreEntry())
	app.AddCommand(chainEntry())
	app.AddCommand(schedulerEntry())
	app.AddCommand(storageEntry())
	app.AddCommand(configEntry())
	app.AddCommand(decryptEntry())
	app.AddCommand(decryptionKeyGenerateEntry())
	app.AddCommand(decryptionKeyToEncryptionKeyEntry())

	osutil.ExitIfError(app.Execute())
}

// credential/path flags common to multiple subcommands. empty value = keep
// what config resolution produced
type overrideFlags struct {
	user      string
	password  string
	backupDir string
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.user, "user", "u", "", "MySQL user (overrides config)")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "MySQL password (overrides config)")
	cmd.Flags().StringVarP(&o.backupDir, "backup-dir", "", "", "Backup chain directory (overrides config)")
}

func (o *overrideFlags) apply(conf *xbconfig.Config) {
	if o.user != "" {
		conf.MysqlUser = o.user
	}
	if o.password != "" {
		conf.MysqlPassword = o.password
	}
	if o.backupDir != "" {
		conf.BackupDir = o.backupDir
	}
}

func orchestratorFromConfig(overrides *overrideFlags, logger *log.Logger) (*xbbackup.Orchestrator, *xbconfig.Config, error) {
	conf, err := xbconfig.ReadFromEnvOrFile()
	if err != nil {
		return nil, nil, err
	}

	if overrides != nil {
		overrides.apply(conf)
	}

	orchestrator, err := xbbackup.New(*conf, xbcmd.NewRunner(logger), logger)
	if err != nil {
		return nil, nil, err
	}

	return orchestrator, conf, nil
}

func configEntry() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Commands related to the configuration file",
		Version: dynversion.Version,
	}

	cmd.AddCommand(configExampleEntry())
	cmd.AddCommand(configValidateEntry())

	return cmd
}

func configValidateEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validates your config file (from stdin)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(jsonfile.Unmarshal(os.Stdin, &xbconfig.Config{}, true))
		},
	}
}

func configExampleEntry() *cobra.Command {
	kitchenSink := false
	pubkeyFilePath := ""

	cmd := &cobra.Command{
		Use:   "example",
		Short: "Shows you an example config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			conf := xbconfig.DefaultConfig(pubkeyFilePath)
			if kitchenSink {
				conf = xbconfig.KitchenSinkConfig(pubkeyFilePath)
			}

			osutil.ExitIfError(jsonfile.Marshal(os.Stdout, conf))
		},
	}

	cmd.Flags().StringVarP(&pubkeyFilePath, "pubkey-file", "p", pubkeyFilePath, "Path to public key file")
	cmd.Flags().BoolVarP(&kitchenSink, "kitchensink", "", kitchenSink, "All the possible configuration option examples")

	return cmd
}
