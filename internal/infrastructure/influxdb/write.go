package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point stamped with the current time.
//
// Parameters:
//   - measurement: The measurement name (e.g. "update_results")
//   - tags: Indexed, low-cardinality values such as target and outcome
//   - fields: The recorded values
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp. Update
// results are written with their finish time so a slow flush does not
// skew the series. Dropped silently when the client is closed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
