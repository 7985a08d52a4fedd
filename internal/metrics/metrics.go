package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/kws"
)

// Metrics contains all Prometheus metrics for the keyword-spotting loop.
// Each instance owns its registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	WindowsProcessed prometheus.Counter
	WarmupSkipped    prometheus.Counter
	ClassifierErrors prometheus.Counter
	FirmDetections   *prometheus.CounterVec
	LEDToggles       *prometheus.CounterVec
	ActingKeyword    prometheus.Gauge
	DSPTime          prometheus.Histogram
	ClassifyTime     prometheus.Histogram
	Recordings       prometheus.Counter
}

// latency buckets: 1ms to ~1s
var latencyBuckets = prometheus.ExponentialBuckets(0.001, 2, 11)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		WindowsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "kws_windows_processed_total",
			Help: "Windows scored by the classifier",
		}),
		WarmupSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "kws_warmup_windows_skipped_total",
			Help: "Windows classified but not scored while the model window filled",
		}),
		ClassifierErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kws_classifier_errors_total",
			Help: "Classifier invocations that failed",
		}),
		FirmDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kws_firm_detections_total",
			Help: "Firm keyword detections",
		}, []string{"keyword"}),
		LEDToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kws_led_toggles_total",
			Help: "LED toggles by pin",
		}, []string{"pin"}),
		ActingKeyword: f.NewGauge(prometheus.GaugeOpts{
			Name: "kws_acting_keyword",
			Help: "Keyword currently acting (-1 none, 0 primary, 1 secondary)",
		}),
		DSPTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_dsp_duration_seconds",
			Help:    "DSP time reported by the classifier",
			Buckets: latencyBuckets,
		}),
		ClassifyTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kws_classification_duration_seconds",
			Help:    "Inference time reported by the classifier",
			Buckets: latencyBuckets,
		}),
		Recordings: f.NewCounter(prometheus.CounterOpts{
			Name: "kws_recordings_saved_total",
			Help: "Detection windows saved to disk",
		}),
	}
}

// ObservePair exports the buffer pair counters, read at scrape time.
func (m *Metrics) ObservePair(stats func() audio.PairStats) {
	f := promauto.With(m.reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "kws_buffer_flips_total",
		Help: "Buffer pair flips",
	}, func() float64 { return float64(stats().Flips) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "kws_buffer_overwritten_total",
		Help: "Ready windows replaced before the loop consumed them",
	}, func() float64 { return float64(stats().Overwritten) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "kws_buffer_dropped_total",
		Help: "Windows discarded because the loop still held the other buffer",
	}, func() float64 { return float64(stats().Dropped) })
}

// RecordTiming observes the classifier-reported timings.
func (m *Metrics) RecordTiming(dsp, classify time.Duration) {
	m.DSPTime.Observe(dsp.Seconds())
	m.ClassifyTime.Observe(classify.Seconds())
}

func (m *Metrics) RecordFirm(label string) {
	m.FirmDetections.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordToggle(pin int) {
	m.LEDToggles.WithLabelValues(strconv.Itoa(pin)).Inc()
}

func (m *Metrics) SetActing(k kws.Keyword) {
	m.ActingKeyword.Set(float64(k))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
