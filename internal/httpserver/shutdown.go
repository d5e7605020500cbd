package httpserver

import "time"

const (
	// ShutdownTimeout bounds how long in-flight HTTP requests may run once
	// the server stops accepting new ones.
	ShutdownTimeout = 15 * time.Second

	// DrainTimeout bounds how long background workers may spend finishing
	// queued work after the HTTP server has stopped. Video ingestion moves
	// large files, so it gets more room than the request drain.
	DrainTimeout = time.Minute
)
