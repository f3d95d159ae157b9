package facade

import "time"

// Config configures the Server, mirroring the teacher's pkg/server/config.go
// shape adapted to this service's surface.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	EnableCORS     bool
	AllowedOrigins []string
	EnableGraphQL  bool

	// BuildVersion is returned by GET /_version.
	BuildVersion string
}

// DefaultConfig returns sensible defaults: listen on localhost:8080, 10MB
// request cap, CORS open, GraphQL disabled (opt-in, as the teacher treats
// it).
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableGraphQL:  false,
		BuildVersion:   "dev",
	}
}
