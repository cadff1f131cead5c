// Package ratelimit paces requests per host.
//
// Each host gets a concurrency bound (a weighted semaphore) and a minimum
// interval between request starts (a token bucket with burst 1). When a
// host answers with a throttling response the caller reports it through
// Throttle, and every later Acquire for that host waits until the backoff
// has elapsed.
//
// The limiter never rejects a request. It only delays, and the delay is
// bounded by the caller's context; once that ends Acquire fails with
// ErrTimeout.
package ratelimit
