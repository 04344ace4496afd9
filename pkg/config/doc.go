// Package config loads environment-based configuration structs.
//
// It combines godotenv (optional .env file for local development) with
// caarlos0/env struct parsing. Each package in this repository declares its
// own Config struct with `env:` tags; the application entrypoint loads them
// through this package.
//
// # Usage
//
//	type Config struct {
//	    Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
