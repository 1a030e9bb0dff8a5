// Package redis wires go-redis for the plan services: connection bootstrap
// with retry, a readiness probe, and a token-guarded lock used to keep a
// single sweeper instance active across replicas.
package redis
