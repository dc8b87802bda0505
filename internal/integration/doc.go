// Package integration holds end-to-end tests that run the full application
// over real HTTP and WebSocket connections against a scripted model server.
package integration
