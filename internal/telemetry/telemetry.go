// Package telemetry configures the global go-metrics sink used by the ledger.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName prefixes every emitted metric.
const ServiceName = "capledger"

// Setup installs the global metrics sink. When enabled, metrics are exported
// through a private Prometheus registry and the returned handler serves it.
// When disabled, metrics are discarded and the handler is nil.
func Setup(enabled bool) (http.Handler, error) {
	cfg := metrics.DefaultConfig(ServiceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false

	if !enabled {
		if _, err := metrics.NewGlobal(cfg, &metrics.BlackholeSink{}); err != nil {
			return nil, fmt.Errorf("failed to configure metrics: %w", err)
		}
		return nil, nil
	}

	reg := prom.NewRegistry()
	sink, err := prometheus.NewPrometheusSinkFrom(prometheus.PrometheusOpts{
		Registerer: reg,
		Expiration: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus sink: %w", err)
	}

	if _, err := metrics.NewGlobal(cfg, sink); err != nil {
		return nil, fmt.Errorf("failed to configure metrics: %w", err)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
