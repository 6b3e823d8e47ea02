package admin

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Counters are the Prometheus-text-format counters this core exposes on
// /metrics for operational monitoring.
var (
	HeartbeatsSent    = metrics.NewCounter("rtpsd_heartbeats_sent_total")
	AckNacksReceived  = metrics.NewCounter("rtpsd_acknacks_received_total")
	SamplesDelivered  = metrics.NewCounter("rtpsd_samples_delivered_total")
	AccessDenials     = metrics.NewCounter("rtpsd_access_denials_total")
	DatagramsDropped  = metrics.NewCounter("rtpsd_datagrams_dropped_total")
	DeadlineMissed    = metrics.NewCounter("rtpsd_deadline_missed_total")
)

// WritePrometheus renders every registered metric in Prometheus text
// exposition format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
