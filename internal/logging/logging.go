// Package logging builds the zap logger shared by both binaries.
package logging

import (
	"go.uber.org/zap"

	"absensi/internal/config"
)

// New returns a production JSON logger for APP_ENV=prod and a console logger
// otherwise, then reports any config values that fell back to defaults.
func New(cfg config.App) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Production() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("env", cfg.Env))
	for _, w := range cfg.Warnings {
		log.Warn("config fallback", zap.String("detail", w))
	}
	return log
}
