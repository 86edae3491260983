// Package prometheus exports xcomm lifecycle events as Prometheus metrics.
//
// The observer registers its collectors on a caller-owned registerer, so
// several communicators can be exported side by side under different
// namespaces:
//
//	reg := prometheus.NewRegistry()
//	obs, err := xcommprom.NewObserver(reg, "orders")
//	comm, closeFn, err := xcomm.New(func(b *xcomm.CommunicatorBuilder) {
//	    b.WithObserver(obs)
//	})
package prometheus

import (
	"errors"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xcomm"
)

// Observer implements xcomm.Observer on top of Prometheus collectors.
type Observer struct {
	events       *prom.CounterVec
	sendDuration *prom.HistogramVec
	fanout       *prom.HistogramVec
}

var _ xcomm.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them on reg.
func NewObserver(reg prom.Registerer, namespace string) (*Observer, error) {
	if reg == nil {
		return nil, errors.New("xcomm/prometheus: registerer must not be nil")
	}

	o := &Observer{
		events: prom.NewCounterVec(
			prom.CounterOpts{
				Namespace: namespace,
				Subsystem: "xcomm",
				Name:      "events_total",
				Help:      "Communicator lifecycle events by type and topic",
			},
			[]string{"type", "topic"},
		),
		sendDuration: prom.NewHistogramVec(
			prom.HistogramOpts{
				Namespace: namespace,
				Subsystem: "xcomm",
				Name:      "send_duration_seconds",
				Help:      "Time spent enqueuing a message on every channel of a topic",
				Buckets:   []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3},
			},
			[]string{"topic"},
		),
		fanout: prom.NewHistogramVec(
			prom.HistogramOpts{
				Namespace: namespace,
				Subsystem: "xcomm",
				Name:      "send_fanout",
				Help:      "Number of channels a send was delivered to",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"topic"},
		),
	}

	for _, c := range []prom.Collector{o.events, o.sendDuration, o.fanout} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEvent records e.
func (o *Observer) OnEvent(e xcomm.Event) {
	o.events.WithLabelValues(string(e.Type), e.Topic).Inc()

	if e.Type == xcomm.SendDone {
		o.sendDuration.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
		o.fanout.WithLabelValues(e.Topic).Observe(float64(e.Fanout))
	}
}
