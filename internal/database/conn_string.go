package database

import (
	"fmt"
	"net/url"

	"github.com/openfutarchy/futarchy-data/internal/config"
)

// BuildConnString renders the postgres:// URL the pool dials. The
// password is URL-escaped so punctuation in secrets survives.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, sslMode,
	)
}
