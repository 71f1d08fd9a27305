package postgres

import (
	"github.com/rs/zerolog"
	"github.com/samber/do"

	"github.com/yugabyte/ysql-upgrade/internal/config"
	"github.com/yugabyte/ysql-upgrade/internal/logging"
)

func Provide(i *do.Injector) {
	provideCluster(i)
}

func provideCluster(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Cluster, error) {
		cfg, err := do.Invoke[config.Config](i)
		if err != nil {
			return nil, err
		}
		logger, err := do.Invoke[zerolog.Logger](i)
		if err != nil {
			return nil, err
		}
		return NewCluster(ClusterOptions{
			Host:      cfg.Host,
			Port:      cfg.Port,
			SocketDir: cfg.SocketDir,
			AuthKey:   cfg.AuthKey,
			Tracer:    logging.Tracer(logger),
		}, logger), nil
	})
}
