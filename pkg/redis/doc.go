// Package redis provides go-redis client construction with retry and a
// readiness healthcheck. The dispatch token blacklist builds on it.
package redis
