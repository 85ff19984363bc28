package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HubCollector exports the WebSocket client count.
type HubCollector struct {
	hub  *Hub
	desc *prometheus.Desc
}

// NewHubCollector returns a collector reporting hub's connected clients.
func NewHubCollector(hub *Hub) *HubCollector {
	return &HubCollector{
		hub: hub,
		desc: prometheus.NewDesc(
			"shellupdater_websocket_clients",
			"Connected WebSocket clients.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.hub.ClientCount()))
}
