// Package metric defines the Prometheus collectors shared across the
// decoder worker, the transport client and the HTTP server.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics contains all service-level collectors.
type Metrics struct {
	ParsesTotal    *prometheus.CounterVec
	ParseDuration  prometheus.Histogram
	RecordsDecoded prometheus.Counter
	RecordsDropped *prometheus.CounterVec
	MessagesIn     *prometheus.CounterVec
	ResultSends    *prometheus.CounterVec
	UploadBytes    prometheus.Counter
}

// NewMetrics creates every collector with the flightlog namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		ParsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "parser",
				Name:      "parses_total",
				Help:      "Total parse requests by format family",
			},
			[]string{"family"},
		),
		ParseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "flightlog",
				Subsystem: "parser",
				Name:      "parse_duration_seconds",
				Help:      "Wall time of one universal two-pass parse",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		RecordsDecoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "parser",
				Name:      "records_decoded_total",
				Help:      "Data records successfully decoded",
			},
		),
		RecordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "parser",
				Name:      "records_dropped_total",
				Help:      "Records skipped during decode by reason",
			},
			[]string{"reason"},
		),
		MessagesIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "worker",
				Name:      "messages_total",
				Help:      "Inbound worker protocol messages by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		ResultSends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "transport",
				Name:      "result_sends_total",
				Help:      "Outbound ParseResult transmissions by status",
			},
			[]string{"status"},
		),
		UploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flightlog",
				Subsystem: "server",
				Name:      "upload_bytes_total",
				Help:      "Raw log bytes accepted for parsing",
			},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.ParsesTotal,
		m.ParseDuration,
		m.RecordsDecoded,
		m.RecordsDropped,
		m.MessagesIn,
		m.ResultSends,
		m.UploadBytes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
