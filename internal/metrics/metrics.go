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
// PINガードとオフラインキャッシュワーカーから利用する。
type MetricsCollector interface {
	RecordPinOutcome(outcome string)
	RecordCacheHit()
	RecordCacheMiss()
	RecordNetworkFailure(destination string)
	RecordOfflineFallback()
	RecordInstall(success bool)
	RecordHTTPStatus(statusCode int)
	RecordNetworkLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pinOutcomes     *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	networkFail     *prometheus.CounterVec
	offlineFallback prometheus.Counter
	installs        *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	networkLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pinOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastos_pin_outcomes_total",
			Help: "PIN入力の結果別件数",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gastos_cache_hits_total",
			Help: "キャッシュから応答したリクエスト数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gastos_cache_misses_total",
			Help: "キャッシュに存在せずネットワークへ転送したリクエスト数",
		}),
		networkFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastos_network_fail_total",
			Help: "ネットワーク転送失敗の宛先種別ごとの件数",
		}, []string{"destination"}),
		offlineFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gastos_offline_fallback_total",
			Help: "オフラインページを返した件数",
		}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastos_cache_install_total",
			Help: "キャッシュ初期投入の結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gastos_upstream_status_total",
			Help: "上流オリジンのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		networkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gastos_network_latency_seconds",
			Help:    "上流オリジンへの転送レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.pinOutcomes,
		c.cacheHits,
		c.cacheMisses,
		c.networkFail,
		c.offlineFallback,
		c.installs,
		c.httpStatus,
		c.networkLatency,
	)

	return c
}

// RecordPinOutcome はPIN入力の結果を記録する。
func (c *Collector) RecordPinOutcome(outcome string) {
	c.pinOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordNetworkFailure はネットワーク転送失敗を記録する。
func (c *Collector) RecordNetworkFailure(destination string) {
	if destination == "" {
		destination = "unknown"
	}
	c.networkFail.WithLabelValues(destination).Inc()
}

// RecordOfflineFallback はオフラインページ応答を記録する。
func (c *Collector) RecordOfflineFallback() {
	c.offlineFallback.Inc()
}

// RecordInstall はキャッシュ初期投入の結果を記録する。
func (c *Collector) RecordInstall(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.installs.WithLabelValues(result).Inc()
}

// RecordHTTPStatus は上流オリジンのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordNetworkLatency は上流オリジンへの転送レイテンシを記録する。
func (c *Collector) RecordNetworkLatency(duration time.Duration) {
	c.networkLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordPinOutcome(string)            {}
func (Nop) RecordCacheHit()                    {}
func (Nop) RecordCacheMiss()                   {}
func (Nop) RecordNetworkFailure(string)        {}
func (Nop) RecordOfflineFallback()             {}
func (Nop) RecordInstall(bool)                 {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordNetworkLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
