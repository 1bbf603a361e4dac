package orchestrator

import (
	"fmt"
	"strings"

	"github.com/johndauphine/retail-etl/internal/config"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/metrics"
	"github.com/johndauphine/retail-etl/internal/metrics/datadog"
	"github.com/johndauphine/retail-etl/internal/metrics/prompush"
)

// setupMetrics installs the configured backend. The returned func restores
// the no-op backend and releases the client.
func setupMetrics(cfg config.MetricsConfig) (func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return func() {}, nil
	case "prometheus":
		b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		logging.Debug("Metrics: pushing to %s as job %s", cfg.PushgatewayURL, cfg.Job)
		return func() { metrics.SetBackend(nil) }, nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			Namespace:  cfg.Namespace,
			GlobalTags: cfg.Tags,
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		logging.Debug("Metrics: sending to DogStatsD at %s", cfg.DatadogAddr)
		return func() {
			metrics.SetBackend(nil)
			b.Close()
		}, nil
	default:
		return nil, fmt.Errorf("unsupported metrics backend %q", cfg.Backend)
	}
}
