// Package metrics records ledger and quote activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ammledger/internal/amm"
	"ammledger/internal/lending"
)

const namespace = "ammledger"

// Recorder owns a private registry so several recorders can coexist in one
// process. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	events            *prometheus.CounterVec
	quotes            *prometheus.CounterVec
	accounts          prometheus.Gauge
	collateralFactor  prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger operations by op and result kind",
			},
			[]string{"op", "result"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
			},
			[]string{"op"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_events_total",
				Help:      "Ledger events emitted by type",
			},
			[]string{"event"},
		),
		quotes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quotes_total",
				Help:      "Swap quotes by mode and result",
			},
			[]string{"mode", "result"},
		),
		accounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_accounts",
			Help:      "Known ledger accounts",
		}),
		collateralFactor: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_collateral_factor",
			Help:      "Current collateral factor in percent",
		}),
	}
}

// Registry exposes the recorder's registry for scraping or export.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveOperation counts one ledger operation. The result label is "ok" or
// the lending error kind.
func (r *Recorder) ObserveOperation(op string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result(err)).Inc()
	r.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Emit counts a ledger event, so a Recorder can sit in a lending.MultiSink.
func (r *Recorder) Emit(ev lending.Event) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == lending.EventCollateralFactorUpdated {
		r.collateralFactor.Set(float64(ev.NewFactor))
	}
}

// ObserveQuote counts one quote request.
func (r *Recorder) ObserveQuote(mode string, err error) {
	if r == nil {
		return
	}
	r.quotes.WithLabelValues(mode, result(err)).Inc()
}

// SetLedgerState records the account count and collateral factor.
func (r *Recorder) SetLedgerState(accounts int, factor uint64) {
	if r == nil {
		return
	}
	r.accounts.Set(float64(accounts))
	r.collateralFactor.Set(float64(factor))
}

// WriteToTextfile writes all metrics in the node-exporter textfile format.
func (r *Recorder) WriteToTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := lending.Kind(err); kind != "Unknown" {
		return kind
	}
	return amm.Kind(err)
}
