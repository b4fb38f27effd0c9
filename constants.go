package server

import "time"

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// DefaultTickRate is the simulation frequency used when the config does
	// not override it.
	DefaultTickRate = 15

	// HeartbeatInterval is the cadence clients are expected to ping at.
	HeartbeatInterval = 2 * time.Second
)
