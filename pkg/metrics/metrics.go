// Package metrics exposes the destination's age accounting to Prometheus,
// following the same Describe/Collect Collector shape the example pack's
// TCP_INFO exporter uses: a small set of *prometheus.Desc built once, and
// Collect doing nothing but reading already-computed state under a lock.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccczzc/AOI/pkg/agemeter"
)

// Clock returns the simulation/run time the collector should treat as "now"
// when projecting live AoI. In production this is time.Since(epoch).Seconds().
type Clock func() float64

// AgeCollector adapts an *agemeter.Meter into a prometheus.Collector,
// exporting each source's live mean AoI and freshest corrected timestamp.
type AgeCollector struct {
	meter *agemeter.Meter
	now   Clock

	meanAge     *prometheus.Desc
	lastSystime *prometheus.Desc
}

// NewAgeCollector wraps meter. now is called once per Collect to establish
// the projection instant; pass meter's own notion of elapsed run time.
func NewAgeCollector(meter *agemeter.Meter, now Clock) *AgeCollector {
	return &AgeCollector{
		meter: meter,
		now:   now,
		meanAge: prometheus.NewDesc(
			"aoi_source_mean_age_seconds",
			"Time-averaged age of information for a source, from run start to the current instant.",
			[]string{"source"}, nil,
		),
		lastSystime: prometheus.NewDesc(
			"aoi_source_last_systime_received_seconds",
			"Most recent corrected generation timestamp the destination has accepted for a source.",
			[]string{"source"}, nil,
		),
	}
}

func (c *AgeCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.meanAge
	descs <- c.lastSystime
}

func (c *AgeCollector) Collect(metrics chan<- prometheus.Metric) {
	now := c.now()
	for _, snap := range c.meter.LiveSnapshot(now) {
		metrics <- prometheus.MustNewConstMetric(c.meanAge, prometheus.GaugeValue, snap.MeanAge, snap.Key)
		metrics <- prometheus.MustNewConstMetric(c.lastSystime, prometheus.GaugeValue, snap.LastSystimeReceived, snap.Key)
	}
}

// WallClock returns seconds since epoch as a float64, the Clock used by the
// real binaries (tests supply their own deterministic Clock instead).
func WallClock(epoch time.Time) Clock {
	return func() float64 {
		return time.Since(epoch).Seconds()
	}
}

// Serve registers collector with a fresh registry and listens on addr until
// ctx is cancelled. An empty addr disables metrics entirely (returns nil
// immediately), matching --metrics_listen's opt-in semantics.
func Serve(ctx context.Context, addr string, collector prometheus.Collector) error {
	if addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
