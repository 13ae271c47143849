// Package eventcache buffers background-service events per service for one
// backend connection, forwards observation and recording controls to the
// backend, and republishes recording-state changes and new events to
// subscribers.
package eventcache
