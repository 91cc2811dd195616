package lambda

import (
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/config"
)

// OptionsFromConfig derives API options from process configuration. When
// loader is set and loaded with a "protect" section, that section configures
// the scanner instead of PROTECTION_MODE.
func OptionsFromConfig(cfg *config.Config, logger *logrus.Logger, loader config.Source) []Option {
	opts := []Option{WithLogger(logger)}

	if loader != nil {
		opts = append(opts, WithConfigLoader(loader))
	}
	if !hasSection(loader, "protect") {
		opts = append(opts, WithProtection(cfg.ScannerOptions()))
	}
	if cfg.CORS.AllowOrigin != "" {
		opts = append(opts, WithCORS(CORSOptions{
			AllowOrigin:   cfg.CORS.AllowOrigin,
			ExposeHeaders: []string{"Location", "X-Request-ID"},
		}))
	}
	return opts
}

func hasSection(loader config.Source, name string) bool {
	if loader == nil || !loader.IsLoaded() {
		return false
	}
	_, ok := loader.Get()[name].(map[string]any)
	return ok
}
