// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives counters describing TX/RX pipeline activity. It is
// optional everywhere it appears; a nil Recorder is never called.
type Recorder interface {
	FramesEnqueued(n int)
	FramesPopped(n int)
	FramesExpired(n int)
	FramesFailed(n int)
	TransfersDelivered(n int)
}

func recordEnqueued(r Recorder, n int) {
	if r != nil {
		r.FramesEnqueued(n)
	}
}

func recordPopped(r Recorder, n int) {
	if r != nil {
		r.FramesPopped(n)
	}
}

func recordExpired(r Recorder, n int) {
	if r != nil {
		r.FramesExpired(n)
	}
}

func recordFailed(r Recorder, n int) {
	if r != nil {
		r.FramesFailed(n)
	}
}

func recordDelivered(r Recorder, n int) {
	if r != nil {
		r.TransfersDelivered(n)
	}
}

// PrometheusRecorder implements Recorder on top of five plain counters
// registered under the "cyphalcan" namespace.
type PrometheusRecorder struct {
	enqueued   prometheus.Counter
	popped     prometheus.Counter
	expired    prometheus.Counter
	failed     prometheus.Counter
	delivered  prometheus.Counter
}

// NewPrometheusRecorder builds a PrometheusRecorder and registers its
// metrics with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		enqueued:  factory.NewCounter(prometheus.CounterOpts{Namespace: "cyphalcan", Name: "frames_enqueued_total"}),
		popped:    factory.NewCounter(prometheus.CounterOpts{Namespace: "cyphalcan", Name: "frames_popped_total"}),
		expired:   factory.NewCounter(prometheus.CounterOpts{Namespace: "cyphalcan", Name: "frames_expired_total"}),
		failed:    factory.NewCounter(prometheus.CounterOpts{Namespace: "cyphalcan", Name: "frames_failed_total"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{Namespace: "cyphalcan", Name: "transfers_delivered_total"}),
	}
}

func (p *PrometheusRecorder) FramesEnqueued(n int)     { p.enqueued.Add(float64(n)) }
func (p *PrometheusRecorder) FramesPopped(n int)       { p.popped.Add(float64(n)) }
func (p *PrometheusRecorder) FramesExpired(n int)      { p.expired.Add(float64(n)) }
func (p *PrometheusRecorder) FramesFailed(n int)       { p.failed.Add(float64(n)) }
func (p *PrometheusRecorder) TransfersDelivered(n int) { p.delivered.Add(float64(n)) }
