// Package middleware provides an interceptor chain for cross-cutting
// handler concerns: logging, filtering and per-message deadlines. A chain
// wraps a messaging.MessageHandler and plugs into Subscribe or Receive in
// its place; interceptors see every attempt and share the handler's
// contract, where nil completes the message and an error abandons it.
package middleware
