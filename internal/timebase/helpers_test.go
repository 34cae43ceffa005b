package timebase

import (
	"io"

	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func noopMetrics() *metrics.Registry {
	return metrics.New(prometheus.NewRegistry())
}
