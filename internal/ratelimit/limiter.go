// Package ratelimit bounds request rates per key over a trailing window.
package ratelimit

// Limiter decides whether a request identified by key may proceed. Allowing
// a request records it against the key's window.
type Limiter interface {
	Allow(key string) bool
}
