// Package ratelimit limits requests per client IP with token buckets that
// are evicted once idle.
//
// State is in-memory and per instance. It blunts a single noisy client; it
// does nothing against traffic spread over many addresses, which belongs to
// the load balancer or CDN in front.
package ratelimit
