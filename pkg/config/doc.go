// Package config loads typed configuration from environment variables.
//
// Struct fields are annotated with github.com/caarlos0/env/v11 tags and an
// optional .env file is picked up through github.com/joho/godotenv. Parsed
// structs are cached per type, so packages can call Load for the same config
// type repeatedly without re-reading the environment.
//
//	type Config struct {
//		AccessToken string        `env:"MP_ACCESS_TOKEN"`
//		Timeout     time.Duration `env:"MP_TIMEOUT" envDefault:"15s"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
