package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "sensorbench"

	// Metrics names.
	MetricNameBuildInfo     = Namespace + "_build_info"
	MetricNameErrors        = Namespace + "_errors_total"
	MetricNameFramesRead    = Namespace + "_frames_read_total"
	MetricNameFramesSkipped = Namespace + "_frames_skipped_total"
	MetricNameRecordings    = Namespace + "_recordings_total"
	MetricNameHTTPRequests  = Namespace + "_http_requests_total"

	// Labels.
	LabelVersion   = "version"
	LabelCommit    = "commit"
	LabelDate      = "date"
	LabelErrorType = "error_type"
	LabelSample    = "label"
	LabelRoute     = "route"
	LabelCode      = "code"

	// Error types.
	ErrorTypeDeviceOpen    = "device_open"
	ErrorTypeDeviceRead    = "device_read"
	ErrorTypeRecord        = "record"
	ErrorTypeStoreSave     = "store_save"
	ErrorTypeStoreLoad     = "store_load"
	ErrorTypeServerEncode  = "server_encode"
	ErrorTypePreviewSmooth = "preview_smooth"
	ErrorTypeExportRecord  = "export_record"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBuildInfo,
			Help: "Build information of sensorbench",
		},
		[]string{LabelVersion, LabelCommit, LabelDate},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameErrors,
			Help: "Number of errors encountered",
		},
		[]string{LabelErrorType},
	)

	FramesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameFramesRead,
			Help: "Number of valid frames parsed from the device stream",
		},
	)

	FramesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameFramesSkipped,
			Help: "Number of malformed lines skipped in the device stream",
		},
	)

	Recordings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRecordings,
			Help: "Number of recordings saved, by label",
		},
		[]string{LabelSample},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequests,
			Help: "Number of HTTP requests served, by route and status code",
		},
		[]string{LabelRoute, LabelCode},
	)
)
