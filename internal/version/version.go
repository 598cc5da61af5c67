// Package version хранит данные сборки, подставляемые через -ldflags.
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает только номер версии.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// BuildInfoCollector экспортирует portfolio_build_info со значением 1.
func BuildInfoCollector() prometheus.Collector {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_build_info",
		Help: "Build information of the running portfolio server.",
	}, []string{"version", "commit", "date"})
	gauge.WithLabelValues(version, commit, date).Set(1)
	return gauge
}
