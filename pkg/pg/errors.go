package pg

import "errors"

var (
	ErrInvalidConnectionString = errors.New("failed to parse postgres connection string")
	ErrConnectionFailed        = errors.New("failed to open postgres connection")
	ErrHealthcheckFailed       = errors.New("postgres healthcheck failed")
	ErrMigrationsPathMissing   = errors.New("migrations path not provided")
	ErrMigrationsFailed        = errors.New("failed to apply migrations")
)
