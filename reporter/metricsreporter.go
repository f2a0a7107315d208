// SPDX-License-Identifier: LGPL-3.0-or-later

package reporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hyperfetch"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperfetch_tasks_total",
			Help: "Total number of download tasks by terminal outcome",
		},
		[]string{"outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperfetch_task_duration_seconds",
			Help:    "Download task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"outcome"},
	)

	bytesDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperfetch_bytes_downloaded_total",
			Help: "Total bytes downloaded",
		},
		[]string{"outcome"},
	)

	activeTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperfetch_active_tasks",
			Help: "Number of tasks currently downloading",
		},
	)

	downloadSpeed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hyperfetch_download_speed_bytes_per_second",
			Help:    "Observed per-task download speed in bytes per second",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14),
		},
	)

	operationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperfetch_operation_results_total",
			Help: "Control-plane operation results by HTTP-style status code",
		},
		[]string{"operation", "code"},
	)
)

// MetricsReporter forwards lifecycle events to Prometheus counters and
// histograms; it renders nothing itself and is meant to run alongside a
// BarReporter or TUIReporter via a fan-out reporter.
type MetricsReporter struct{}

func (MetricsReporter) StartTask(uint32, int64) {
	activeTasks.Inc()
}

func (MetricsReporter) UpdateProgress(_ uint32, progress hyperfetch.Progress) {
	if progress.RateBPS > 0 {
		downloadSpeed.Observe(progress.RateBPS)
	}
}

func (MetricsReporter) FinishTask(_ uint32, result hyperfetch.FinishResult) {
	activeTasks.Dec()

	outcome := outcomeLabel(result.Kind)
	tasksTotal.WithLabelValues(outcome).Inc()
	taskDuration.WithLabelValues(outcome).Observe(result.Duration.Seconds())
	if result.Kind == hyperfetch.FinishSuccess {
		bytesDownloaded.WithLabelValues(outcome).Add(float64(result.Size))
	}
}

func (MetricsReporter) OperationResult(op hyperfetch.Operation, _ uint32, code int, _ string) {
	operationResults.WithLabelValues(operationLabel(op), strconv.Itoa(code)).Inc()
}

func outcomeLabel(kind hyperfetch.FinishKind) string {
	switch kind {
	case hyperfetch.FinishSuccess:
		return "success"
	case hyperfetch.FinishCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

func operationLabel(op hyperfetch.Operation) string {
	switch op {
	case hyperfetch.OpDownload:
		return "download"
	case hyperfetch.OpDownloadTask:
		return "download_task"
	case hyperfetch.OpStartAll:
		return "start_all"
	case hyperfetch.OpPauseAll:
		return "pause_all"
	case hyperfetch.OpResumeAll:
		return "resume_all"
	case hyperfetch.OpCancelAll:
		return "cancel_all"
	case hyperfetch.OpStartTask:
		return "start_task"
	case hyperfetch.OpPauseTask:
		return "pause_task"
	case hyperfetch.OpResumeTask:
		return "resume_task"
	case hyperfetch.OpCancelTask:
		return "cancel_task"
	case hyperfetch.OpChangeConcurrency:
		return "change_concurrency"
	case hyperfetch.OpSetRateLimit:
		return "set_rate_limit"
	default:
		return "unknown"
	}
}
