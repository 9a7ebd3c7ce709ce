package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORSConfig configures Cross-Origin Resource Sharing for the GraphQL
// endpoint.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// corsOptions translates cfg. Credentials are never combined with a
// wildcard origin.
func corsOptions(cfg CORSConfig) cors.Options {
	var (
		origins  []string
		wildcard bool
	)
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		wildcard = wildcard || origin == "*"
		origins = append(origins, origin)
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials && !wildcard,
		MaxAge:           cfg.MaxAge,
	}
}

// CORSMiddleware adds CORS headers and answers preflight requests with 204.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(corsOptions(cfg)).Handler
}
