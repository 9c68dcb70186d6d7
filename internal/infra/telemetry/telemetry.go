package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/config"
)

// Provider holds process-level telemetry handles.
type Provider struct {
	appInfo *prometheus.GaugeVec
}

// Attach registers process-level metrics and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	appInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "brew",
		Name:      "app_info",
		Help:      "Static service metadata. Always 1.",
	}, []string{"service", "env"})

	if err := prometheus.Register(appInfo); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register app info metric: %w", err)
		}
		appInfo = already.ExistingCollector.(*prometheus.GaugeVec)
	}

	appInfo.WithLabelValues(cfg.App.Name, cfg.App.Env).Set(1)

	return &Provider{appInfo: appInfo}, nil
}
