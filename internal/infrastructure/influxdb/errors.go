package influxdb

import "errors"

// Sentinel errors, matched with errors.Is. Callers that see
// ErrNotConnected or ErrDisabled should degrade to serving requests
// without history rather than failing.
var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrQueryFailed      = errors.New("influxdb: query failed")
)
