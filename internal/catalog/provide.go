package catalog

import (
	"github.com/rs/zerolog"
	"github.com/samber/do"
)

func Provide(i *do.Injector) {
	provideTracker(i)
}

func provideTracker(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Tracker, error) {
		logger, err := do.Invoke[zerolog.Logger](i)
		if err != nil {
			return nil, err
		}
		return NewTracker(logger), nil
	})
}
