// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like HTTP/HTTPS
// ports, TLS, logging level, CORS, and request body limits. AppConfig
// is where everything specific to this application lives.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Redis preference-store configuration. Blank RedisAddr selects the
	// in-memory store (single-instance deployments and local dev).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Device session tokens
	TokenSecret string        // HMAC signing secret (must be strong in production)
	TokenTTL    time.Duration // How long issued tokens stay valid

	// Advisory lock lease length for multi-document group operations.
	LockTTL time.Duration
}
