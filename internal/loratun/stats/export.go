package stats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "loratun"

// Collectors - Prometheus counters reading straight from s
func (s *Stats) Collectors() []prometheus.Collector {
	counter := func(name, help string, v func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v()) })
	}
	cs := []prometheus.Collector{
		counter("packets_out_total", "IP packets sent over the serial link.", s.PacketsOut.Load),
		counter("packets_in_total", "IP packets delivered to the virtual interface.", s.PacketsIn.Load),
		counter("link_bytes_out_total", "Bytes written to the serial link.", s.BytesOut.Load),
		counter("link_bytes_in_total", "Bytes read from the serial link.", s.BytesIn.Load),
		counter("write_errors_total", "Failed writes to the link or the virtual interface.", s.WriteErrors.Load),
		counter("read_errors_total", "Failed reads from the link or the virtual interface.", s.ReadErrors.Load),
	}
	for _, r := range Reasons() {
		r := r
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "drops_total",
			Help:        "Discarded packets, frames or stream bytes by reason.",
			ConstLabels: prometheus.Labels{"reason": r.String()},
		}, func() float64 { return float64(s.Drops(r)) }))
	}
	return cs
}

// Register - register every collector of s on reg
func (s *Stats) Register(reg prometheus.Registerer) error {
	for _, c := range s.Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}

// Serve - expose s on addr at /metrics until ctx is cancelled, return the bound address
func Serve(ctx context.Context, addr string, s *Stats) (net.Addr, error) {
	reg := prometheus.NewRegistry()
	if err := s.Register(reg); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Warn("metrics server stopped")
		}
	}()
	logrus.WithField("addr", listener.Addr().String()).Info("metrics available at /metrics")
	return listener.Addr(), nil
}

// StartReporter launches a goroutine that logs traffic every interval while
// anything moved. It stops when ctx is cancelled.
func StartReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				delta := cur.Sub(prev)
				prev = cur
				if delta.Idle() {
					continue
				}
				logrus.WithFields(logrus.Fields{
					"pkts_out": delta.PacketsOut,
					"pkts_in":  delta.PacketsIn,
					"out_Bps":  float64(delta.BytesOut) / interval.Seconds(),
					"in_Bps":   float64(delta.BytesIn) / interval.Seconds(),
					"drops":    delta.TotalDrops(),
				}).Info("link traffic")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Snapshot - point-in-time copy of the counters
type Snapshot struct {
	PacketsOut, PacketsIn int64
	BytesOut, BytesIn     int64
	Drops                 [numReasons]int64
}

// Snapshot - copy the counters of s
func (s *Stats) Snapshot() Snapshot {
	var snap Snapshot
	if s == nil {
		return snap
	}
	snap.PacketsOut = s.PacketsOut.Load()
	snap.PacketsIn = s.PacketsIn.Load()
	snap.BytesOut = s.BytesOut.Load()
	snap.BytesIn = s.BytesIn.Load()
	for i := range snap.Drops {
		snap.Drops[i] = s.drops[i].Load()
	}
	return snap
}

// Sub - counters moved between prev and a
func (a Snapshot) Sub(prev Snapshot) Snapshot {
	d := Snapshot{
		PacketsOut: a.PacketsOut - prev.PacketsOut,
		PacketsIn:  a.PacketsIn - prev.PacketsIn,
		BytesOut:   a.BytesOut - prev.BytesOut,
		BytesIn:    a.BytesIn - prev.BytesIn,
	}
	for i := range d.Drops {
		d.Drops[i] = a.Drops[i] - prev.Drops[i]
	}
	return d
}

// TotalDrops - sum of drops over every reason
func (a Snapshot) TotalDrops() int64 {
	var n int64
	for _, v := range a.Drops {
		n += v
	}
	return n
}

// Idle - nothing moved and nothing was dropped
func (a Snapshot) Idle() bool {
	return a.PacketsOut == 0 && a.PacketsIn == 0 && a.BytesIn == 0 && a.TotalDrops() == 0
}
