package upgrade

import (
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/spf13/afero"

	"github.com/yugabyte/ysql-upgrade/internal/catalog"
	"github.com/yugabyte/ysql-upgrade/internal/config"
	"github.com/yugabyte/ysql-upgrade/internal/migrations"
	"github.com/yugabyte/ysql-upgrade/internal/postgres"
)

func Provide(i *do.Injector) {
	provideFs(i)
	provideScheduler(i)
}

func provideFs(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (afero.Fs, error) {
		return afero.NewOsFs(), nil
	})
}

func provideScheduler(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Scheduler, error) {
		cfg, err := do.Invoke[config.Config](i)
		if err != nil {
			return nil, err
		}
		logger, err := do.Invoke[zerolog.Logger](i)
		if err != nil {
			return nil, err
		}
		fsys, err := do.Invoke[afero.Fs](i)
		if err != nil {
			return nil, err
		}
		cluster, err := do.Invoke[*postgres.Cluster](i)
		if err != nil {
			return nil, err
		}
		tracker, err := do.Invoke[*catalog.Tracker](i)
		if err != nil {
			return nil, err
		}

		dir := cfg.MigrationsDir
		if dir == "" {
			if dir, err = migrations.DiscoverDir(fsys); err != nil {
				return nil, err
			}
		}

		return NewScheduler(fsys, dir, cluster, tracker, cfg.HeartbeatInterval(), logger), nil
	})
}
