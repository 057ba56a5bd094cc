// Package influxdb records room evaluation history for Hearth Core.
//
// Every room value change becomes one point in the history bucket,
// tagged with the room and the source of the change (schedule, manual
// override, or a replicated actor change). The room history API reads
// the same points back through a Flux query, newest first.
//
// The package wraps the official influxdb-client-go v2 library. Writes
// go through the non-blocking batched write API; batch failures are
// delivered via the SetOnError callback rather than returned. Room
// value changes are low-frequency, so in practice batches flush on the
// interval timer, not on size.
//
// History is optional. When the config disables it, Connect returns
// ErrDisabled, the engine holds no client, and both recording and the
// history endpoint are unavailable. Nothing else degrades.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteRoomValue("living", 21.5, "schedule", "evening", time.Now())
//
// All methods are safe for concurrent use.
package influxdb
