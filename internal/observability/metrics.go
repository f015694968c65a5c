// Package observability exposes the ingestion loop's accounting as
// Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unklstewy/l2p-scope/pkg/ingest"
)

// FeedSource is the slice of the ingestion supervisor the metrics read.
// Every metric reads a live value at gather time, so no sync loop runs
// between the ingestion loop and the registry.
type FeedSource interface {
	Stats() ingest.Stats
	State() ingest.State
	Tracks() int
}

// FeedCollector bundles the Prometheus metrics for one ingestion
// supervisor and provides the /metrics handler that serves them.
type FeedCollector struct {
	gatherer prometheus.Gatherer
}

// NewFeedCollector registers feed metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewFeedCollector(reg prometheus.Registerer, src FeedSource) (*FeedCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	counters := []struct {
		name string
		help string
		read func(ingest.Stats) uint64
	}{
		{"feed_cycles_total", "Completed supervisor poll cycles.",
			func(st ingest.Stats) uint64 { return st.Cycles }},
		{"feed_payloads_total", "Raw data payloads received from the transport.",
			func(st ingest.Stats) uint64 { return st.Payloads }},
		{"feed_lines_total", "Complete feed lines reassembled from payloads.",
			func(st ingest.Stats) uint64 { return st.Lines }},
		{"feed_position_records_total", "Aircraft position records routed to the track store.",
			func(st ingest.Stats) uint64 { return st.Positions }},
		{"feed_telescope_updates_total", "Telescope status records applied.",
			func(st ingest.Stats) uint64 { return st.TelescopeUpdates }},
		{"feed_unknown_lines_total", "Lines dropped for an unrecognized token count.",
			func(st ingest.Stats) uint64 { return st.UnknownLines }},
		{"feed_malformed_records_total", "Recognized line shapes rejected for bad numeric fields.",
			func(st ingest.Stats) uint64 { return st.MalformedRecords }},
		{"feed_control_sentinels_total", "In-stream failure sentinels received.",
			func(st ingest.Stats) uint64 { return st.Sentinels }},
		{"feed_transport_failures_total", "Out-of-band transport failure payloads.",
			func(st ingest.Stats) uint64 { return st.TransportFailures }},
		{"feed_reconnects_total", "Successful transport rebuilds.",
			func(st ingest.Stats) uint64 { return st.Reconnects }},
		{"tracks_admitted_total", "Position records admitted into tracks.",
			func(st ingest.Stats) uint64 { return st.Tracking.Admitted }},
		{"tracks_low_elevation_drops_total", "Position records dropped below the elevation cutoff.",
			func(st ingest.Stats) uint64 { return st.Tracking.FilteredLowElevation }},
		{"tracks_gap_discards_total", "Samples discarded for arriving after a track gap.",
			func(st ingest.Stats) uint64 { return st.Tracking.GapDiscards }},
		{"tracks_evicted_total", "Tracks removed by age eviction.",
			func(st ingest.Stats) uint64 { return st.Tracking.Evicted }},
	}

	for _, c := range counters {
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: c.name,
			Help: c.help,
		}, func() float64 { return float64(c.read(src.Stats())) })
		if err := register(reg, cf, c.name); err != nil {
			return nil, err
		}
	}

	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tracks_active",
		Help: "Live tracks currently held in the store.",
	}, func() float64 { return float64(src.Tracks()) })
	if err := register(reg, active, "tracks_active"); err != nil {
		return nil, err
	}

	state := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "feed_state",
		Help: "Supervisor lifecycle phase: 0 running, 1 reconnecting, 2 stopped.",
	}, func() float64 { return float64(src.State()) })
	if err := register(reg, state, "feed_state"); err != nil {
		return nil, err
	}

	return &FeedCollector{gatherer: gatherer}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FeedCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register tolerates re-registration so two collectors for the same
// supervisor can share a registry; the first registration wins.
func register(reg prometheus.Registerer, col prometheus.Collector, name string) error {
	if err := reg.Register(col); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return fmt.Errorf("registering %s: %w", name, err)
	}
	return nil
}
