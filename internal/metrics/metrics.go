// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VendorRecorder は外部生成APIの呼び出し結果を記録するインターフェース。
// ベンダークライアントから利用する。
type VendorRecorder interface {
	RecordVendorCall(vendor, operation string, duration time.Duration, err error)
}

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	VendorRecorder
	RecordHTTPStatus(statusCode int)
	RecordAssetCreated(assetType string)
	RecordCleanupDeleted(job string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	vendorCalls    *prometheus.CounterVec
	vendorLatency  *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
	assetsCreated  *prometheus.CounterVec
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsmith_vendor_requests_total",
			Help: "外部生成APIの呼び出し回数",
		}, []string{"vendor", "operation", "outcome"}),
		vendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortsmith_vendor_latency_seconds",
			Help:    "外部生成APIのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"vendor", "operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsmith_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		assetsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsmith_assets_created_total",
			Help: "作成されたアセット履歴の数",
		}, []string{"asset_type"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsmith_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除された行数",
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.vendorCalls,
		c.vendorLatency,
		c.httpStatus,
		c.assetsCreated,
		c.cleanupDeleted,
	)

	return c
}

// RecordVendorCall はベンダー呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordVendorCall(vendor, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.vendorCalls.WithLabelValues(vendor, operation, outcome).Inc()
	c.vendorLatency.WithLabelValues(vendor, operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAssetCreated は作成されたアセット履歴を種別ごとに記録する。
func (c *Collector) RecordAssetCreated(assetType string) {
	c.assetsCreated.WithLabelValues(assetType).Inc()
}

// RecordCleanupDeleted はクリーンアップジョブの削除件数を記録する。
func (c *Collector) RecordCleanupDeleted(job string, count int64) {
	c.cleanupDeleted.WithLabelValues(job).Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordVendorCall(string, string, time.Duration, error) {}
func (Nop) RecordHTTPStatus(int)                                  {}
func (Nop) RecordAssetCreated(string)                             {}
func (Nop) RecordCleanupDeleted(string, int64)                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
