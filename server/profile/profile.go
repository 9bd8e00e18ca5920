// Package profile holds the server runtime configuration.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the runtime configuration, resolved from flags and
// PARLEY_-prefixed environment variables.
type Profile struct {
	// Addr is the binding address, empty for all interfaces.
	Addr string `mapstructure:"addr"`
	// Port is the binding port.
	Port int `mapstructure:"port"`
	// Data is the directory for sqlite data and the lore index.
	Data string `mapstructure:"data"`
	// Driver is the storage backend: sqlite, postgres or mysql.
	Driver string `mapstructure:"driver"`
	// DSN is the database connection string for postgres and mysql.
	DSN string `mapstructure:"dsn"`
	// LLMBaseURL, LLMAPIKey and LLMModel seed a default connection profile
	// when the store has none.
	LLMBaseURL string `mapstructure:"llm-base-url"`
	LLMAPIKey  string `mapstructure:"llm-api-key"`
	LLMModel   string `mapstructure:"llm-model"`
	// Version is the build version string.
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Version == "dev"
}

// Validate normalizes the profile and rejects unusable combinations.
func (p *Profile) Validate() error {
	switch p.Driver {
	case "sqlite":
		if p.Data == "" {
			p.Data = "."
		}
		abs, err := filepath.Abs(p.Data)
		if err != nil {
			return errors.Wrap(err, "resolve data dir")
		}
		p.Data = abs
		if err := os.MkdirAll(p.Data, 0o755); err != nil {
			return errors.Wrap(err, "create data dir")
		}
		if p.DSN == "" {
			p.DSN = filepath.Join(p.Data, "parley.db")
		}
	case "postgres", "mysql":
		if p.DSN == "" {
			return errors.Errorf("dsn is required for driver %q", p.Driver)
		}
		if p.Data == "" {
			p.Data = "."
		}
	default:
		return errors.Errorf("unknown driver %q", p.Driver)
	}
	return nil
}

// GetProfile resolves the profile from the bound viper instance.
func GetProfile(version string) (*Profile, error) {
	p := &Profile{}
	if err := viper.Unmarshal(p); err != nil {
		return nil, errors.Wrap(err, "unmarshal profile")
	}
	p.Version = version
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ListenAddr is the host:port the HTTP server binds.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}
