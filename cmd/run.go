package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/yugabyte/ysql-upgrade/internal/upgrade"
)

func newRunCommand(i *do.Injector) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Upgrade every database in the cluster to the latest schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler, err := do.Invoke[*upgrade.Scheduler](i)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			return scheduler.Run(ctx)
		},
	}
}
