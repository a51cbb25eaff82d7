// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証、イベント操作、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthCheck(outcome string)
	RecordIdentityResolution(platform, result string)
	ObserveIdentityCall(provider string, d time.Duration, err error)
	RecordEventOperation(operation, result string)
	RecordHTTPRequest(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authChecks      *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	identityCalls   *prometheus.HistogramVec
	eventOperations *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventinator_auth_checks_total",
			Help: "認証判定の結果別の合計数",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventinator_identity_resolutions_total",
			Help: "IdPの本人情報からローカルユーザーへの解決結果別の合計数",
		}, []string{"platform", "result"}),
		identityCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventinator_identity_call_seconds",
			Help:    "IdP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "result"}),
		eventOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventinator_event_operations_total",
			Help: "イベント操作の種類・結果別の合計数",
		}, []string{"operation", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventinator_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventinator_sessions_cleaned_total",
			Help: "削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.authChecks,
		c.resolutions,
		c.identityCalls,
		c.eventOperations,
		c.httpRequests,
		c.sessionsCleaned,
	)

	return c
}

// RecordAuthCheck は認証判定の結果を記録する。
func (c *Collector) RecordAuthCheck(outcome string) {
	c.authChecks.WithLabelValues(outcome).Inc()
}

// RecordIdentityResolution はユーザー解決の結果を記録する。
func (c *Collector) RecordIdentityResolution(platform, result string) {
	c.resolutions.WithLabelValues(platform, result).Inc()
}

// ObserveIdentityCall はIdP呼び出しのレイテンシを記録する。
func (c *Collector) ObserveIdentityCall(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.identityCalls.WithLabelValues(provider, result).Observe(d.Seconds())
}

// RecordEventOperation はイベント操作の結果を記録する。
func (c *Collector) RecordEventOperation(operation, result string) {
	c.eventOperations.WithLabelValues(operation, result).Inc()
}

// RecordHTTPRequest はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPRequest(statusCode int) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのメトリクス公開に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
