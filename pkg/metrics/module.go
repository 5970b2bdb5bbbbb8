package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const Subsystem = "agentbilling"

func newRecorder() (*Recorder, error) {
	return NewRecorder(prometheus.DefaultRegisterer, Subsystem)
}

var Module = fx.Options(
	fx.Provide(newRecorder),
)
