package cmd

import (
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/yugabyte/ysql-upgrade/internal/catalog"
	"github.com/yugabyte/ysql-upgrade/internal/config"
	"github.com/yugabyte/ysql-upgrade/internal/logging"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
	"github.com/yugabyte/ysql-upgrade/internal/upgrade"
)

var (
	configPath string
	logger     zerolog.Logger
)

func newRootCmd(i *do.Injector) *cobra.Command {
	return &cobra.Command{
		Use:   "ysql-upgrade",
		Short: "YSQL catalog migration runner",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// Source order determines precedence. The last source loaded will
			// override any previous values.
			var sources []*config.Source
			if configPath != "" {
				sources = append(sources, config.NewJsonFileSource(configPath))
			}
			sources = append(sources,
				config.NewEnvVarSource(),
				config.NewPFlagSource(cmd.Flags()),
			)

			config.Provide(i, sources...)
			logging.Provide(i)
			postgres.Provide(i)
			catalog.Provide(i)
			upgrade.Provide(i)

			var err error
			if logger, err = do.Invoke[zerolog.Logger](i); err != nil {
				return err
			}

			return nil
		},
	}
}

func Execute() {
	i := do.New()
	rootCmd := newRootCmd(i)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config-path", "c", "", "Path to the config.json file for this tool.")
	rootCmd.PersistentFlags().StringP("logging.level", "l", "", "The logging level, e.g. 'debug', 'info', 'error', etc.")
	rootCmd.PersistentFlags().BoolP("logging.pretty", "p", false, "Use pretty logging instead of JSON logging.")
	rootCmd.PersistentFlags().String("host", "", "Hostname or IP of a node accepting YSQL connections.")
	rootCmd.PersistentFlags().Int("port", 0, "YSQL port of the node.")
	rootCmd.PersistentFlags().String("socket-dir", "", "Unix socket directory of a local node; takes precedence over host.")
	rootCmd.PersistentFlags().String("migrations-dir", "", "Directory holding the migration scripts; discovered relative to the binary when unset.")
	rootCmd.PersistentFlags().Int("heartbeat-interval-ms", 0, "Catalog heartbeat interval of the cluster in milliseconds.")

	rootCmd.AddCommand(newRunCommand(i))
	rootCmd.AddCommand(newVersionCommand(i))

	if err := rootCmd.Execute(); err != nil {
		if logger.GetLevel() == zerolog.NoLevel {
			// NoLevel indicates that the logger is uninitialized. In this case
			// we'll use our fallback logger.
			logging.Fatal(err, "command failed")
		} else {
			logger.Fatal().
				Err(err).
				Msg("command failed")
		}
	}
}
