// Package main is the entry point for the Mycelia kernel demo host.
//
// It boots the in-process message kernel, registers the bundled
// httpclient and script subsystems, and exposes two external
// collaborators that feed messages into the core: an HTTP ingress feeder
// and a websocket channel bridge. Neither feeder is part of the kernel's
// trust boundary — they hold friend principals like any other caller.
//
// Configuration:
//   - Environment variables (12-factor, see internal/config)
//   - CLI flags for the two feeder ports
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown (drains queues, stops scheduler)
package main
