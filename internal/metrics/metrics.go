// Package metrics exposes dispatch and configuration-load metrics on a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dcs"

type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	profiles         prometheus.Gauge
	portConflicts    prometheus.Gauge
	configFiles      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Command dispatches by server, command, transport and result code",
			},
			[]string{"server", "command", "transport", "result"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of command dispatches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"server", "transport"},
		),
		profiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_profiles",
			Help:      "Server profiles in the directory",
		}),
		portConflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "port_conflicts",
			Help:      "Port conflicts detected by the last configuration load",
		}),
		configFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_files",
			Help:      "Configuration files read by the last load",
		}),
	}

	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.profiles,
		m.portConflicts,
		m.configFiles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveDispatch(server, command, transport string, code types.ResultCode, elapsed time.Duration) {
	if transport == "" {
		transport = "none"
	}
	m.dispatchTotal.WithLabelValues(server, command, transport, code.Code()).Inc()
	m.dispatchDuration.WithLabelValues(server, transport).Observe(elapsed.Seconds())
}

// ObserveLoad records the outcome of a configuration load. installed is the
// number of profiles accepted into the directory.
func (m *Metrics) ObserveLoad(res *dcs.LoadResult, installed int) {
	m.profiles.Set(float64(installed))
	m.portConflicts.Set(float64(len(res.Conflicts)))
	m.configFiles.Set(float64(len(res.Files)))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
