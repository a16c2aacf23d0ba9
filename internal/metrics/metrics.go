// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AI分析の経路ラベル
const (
	PathBackground = "background" // 作成時のバックグラウンド分析
	PathExplicit   = "explicit"   // 明示的な分析リクエスト
	PathExpand     = "expand"     // 拡張提案
)

// AI分析の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeGone    = "gone" // 分析完了前にアイデアが削除された
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordAnalysis(path, outcome string, duration time.Duration)
	RecordEnrichDropped()
	RecordAuthRejected(reason string)
	RecordSessionIssued()
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	analysisTotal   *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec
	enrichDropped   prometheus.Counter
	authRejected    *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaarchitect_analysis_total",
			Help: "AI分析呼び出しの経路・結果別の合計数",
		}, []string{"path", "outcome"}),
		analysisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ideaarchitect_analysis_latency_seconds",
			Help:    "AI分析呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"path"}),
		enrichDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaarchitect_enrich_dropped_total",
			Help: "キュー満杯で破棄されたバックグラウンド分析ジョブの合計数",
		}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaarchitect_auth_rejected_total",
			Help: "認証ガードで拒否されたリクエストの理由別の合計数",
		}, []string{"reason"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaarchitect_sessions_issued_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaarchitect_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.analysisTotal,
		c.analysisLatency,
		c.enrichDropped,
		c.authRejected,
		c.sessionsIssued,
		c.sessionsPurged,
	)

	return c
}

// RecordAnalysis はAI分析呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAnalysis(path, outcome string, duration time.Duration) {
	c.analysisTotal.WithLabelValues(path, outcome).Inc()
	c.analysisLatency.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordEnrichDropped はキュー満杯によるジョブ破棄を記録する。
func (c *Collector) RecordEnrichDropped() {
	c.enrichDropped.Inc()
}

// RecordAuthRejected は認証拒否を記録する。
func (c *Collector) RecordAuthRejected(reason string) {
	c.authRejected.WithLabelValues(reason).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

// RecordSessionsPurged は期限切れセッションの削除件数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集中のエラーは可能な範囲でメトリクスを返し続ける。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
