// Package config loads environment-based configuration structs, optionally
// seeded from a .env file, with one parse per config type per process.
package config
