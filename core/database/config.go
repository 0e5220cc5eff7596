package database

import (
	"net"
	"net/url"
	"strings"

	coreconfig "github.com/m3rciful/swapbot/core/config"
)

// Config holds database connection settings.
type Config = coreconfig.DatabaseConfig

// DSN builds a lib/pq keyword/value connection string. Empty settings are
// left out so the driver defaults apply.
func DSN(cfg Config) string {
	pairs := [][2]string{
		{"user", cfg.User},
		{"password", cfg.Password},
		{"host", cfg.Host},
		{"port", cfg.Port},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] != "" {
			parts = append(parts, p[0]+"="+quoteDSN(p[1]))
		}
	}
	return strings.Join(parts, " ")
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + dsnEscaper.Replace(v) + "'"
}

// URL builds the postgres:// form expected by golang-migrate.
func URL(cfg Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}
