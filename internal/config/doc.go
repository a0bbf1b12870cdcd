// Package config provides centralized configuration management for the
// Senna runtime: a JSON configuration file with sensible defaults, plus
// environment variable indirection for secrets such as provider API keys
// and the wallet signing key.
package config
