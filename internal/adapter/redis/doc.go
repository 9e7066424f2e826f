// Package redis adapts Redis Pub/Sub as the event bus.
//
// Subscriber and EventPublisher carry CBOR-encoded envelopes on a single topic. The client
// is instrumented with hooks for command metrics and a circuit breaker that fails fast
// while Redis is unreachable.
package redis
