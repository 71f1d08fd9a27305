package config

import (
	"fmt"

	"github.com/knadh/koanf/v2"
)

// Manager merges configuration sources over the defaults and validates
// the result. Source order determines precedence: the last source
// loaded overrides any previous values.
type Manager struct {
	sources []*Source
	config  Config
}

func NewManager(sources ...*Source) *Manager {
	return &Manager{
		sources: sources,
	}
}

func (m *Manager) Config() Config {
	return m.config
}

func (m *Manager) Load() error {
	combined := koanf.New(".")
	if err := LoadStruct(combined, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, source := range m.sources {
		err := combined.Load(source.Provider(combined), source.Parser, source.Options...)
		if err != nil {
			return fmt.Errorf("failed to load config source: %w", err)
		}
	}

	var merged Config
	if err := combined.Unmarshal("", &merged); err != nil {
		return fmt.Errorf("failed to unmarshal combined config: %w", err)
	}

	if err := merged.Validate(); err != nil {
		return err
	}

	m.config = merged

	return nil
}
