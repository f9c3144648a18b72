package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configuration structs that check their own
// values after parsing.
type Validator interface {
	Validate() error
}

// Option adjusts how Load reads variables.
type Option func(*env.Options)

// WithEnvironment reads from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *env.Options) { o.Environment = vars }
}

// Load fills the struct cfg points to from its `env` and `envDefault` tags
// and then runs Validate when cfg implements Validator.
//
//	type Config struct {
//	    Port       int    `env:"HTTP_PORT" envDefault:"8020"`
//	    SourceURL  string `env:"CATEGORY_SERVICE_URL,required"`
//	}
func Load(cfg any, opts ...Option) error {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}
	if err := env.ParseWithOptions(cfg, o); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}
