package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and semantic errors.
//
// Struct tags cover field-level constraints (ranges, enums, required
// fields); cross-field rules that tags cannot express are checked
// explicitly afterwards.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			// Report the first violation with its config path for a
			// readable message instead of the raw validator dump.
			v := verrs[0]
			return fmt.Errorf("invalid value for %s: failed '%s' constraint", v.Namespace(), v.Tag())
		}
		return err
	}

	if cfg.Cache.StaleTTL <= cfg.Cache.FreshTTL {
		return fmt.Errorf("cache.stale_ttl (%s) must be greater than cache.fresh_ttl (%s)",
			cfg.Cache.StaleTTL, cfg.Cache.FreshTTL)
	}

	if !cfg.Store.InMemory && cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}

	return nil
}
