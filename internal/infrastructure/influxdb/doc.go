// Package influxdb records update telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// Every finished update request becomes one point in the update_results
// measurement (target, outcome and failure kind as tags; payload size,
// transferred bytes and duration as fields), so fleets of update stations
// can be charted without reading each station's history database.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("update_results", tags, fields)
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
