// Package server implements the optional HTTP monitoring surface: health and
// statistics endpoints, Prometheus metrics, and a websocket broadcast of
// emitted caption lines.
package server
