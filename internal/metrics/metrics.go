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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordLLMCall(op string, err error, duration time.Duration)
	RecordArticleFetch(source string, err error, duration time.Duration)
	RecordFeedbackCategory(category string)
	RecordFeedbackDegraded(reason string)
	RecordTranscribedMinutes(minutes float64)
	RecordQuotaDenied()
	RecordSideEffectFailure(op string)
	RecordSessionStarted(mode string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	llmRequests       *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
	articleFetches    *prometheus.CounterVec
	articleLatency    prometheus.Histogram
	feedbackItems     *prometheus.CounterVec
	feedbackDegraded  *prometheus.CounterVec
	transcribedMins   prometheus.Counter
	quotaDenied       prometheus.Counter
	sideEffectFailure *prometheus.CounterVec
	sessionsStarted   *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_llm_requests_total",
			Help: "言語モデル呼び出しの合計数",
		}, []string{"op", "result"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newstalk_llm_latency_seconds",
			Help:    "言語モデル呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"op"}),
		articleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_article_fetch_total",
			Help: "記事取得の合計数",
		}, []string{"source", "result"}),
		articleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newstalk_article_fetch_latency_seconds",
			Help:    "記事取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		feedbackItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_feedback_items_total",
			Help: "生成されたフィードバックのカテゴリ別件数",
		}, []string{"category"}),
		feedbackDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_feedback_degraded_total",
			Help: "解析失敗により空のフィードバックを返した回数",
		}, []string{"reason"}),
		transcribedMins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newstalk_transcribed_minutes_total",
			Help: "文字起こしした音声の合計分数",
		}),
		quotaDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newstalk_quota_denied_total",
			Help: "使用上限により拒否した文字起こし要求の数",
		}),
		sideEffectFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_side_effect_failures_total",
			Help: "失敗しても処理を続行した副作用の失敗数",
		}, []string{"op"}),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_sessions_started_total",
			Help: "開始されたセッション数",
		}, []string{"mode"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newstalk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.llmRequests,
		c.llmLatency,
		c.articleFetches,
		c.articleLatency,
		c.feedbackItems,
		c.feedbackDegraded,
		c.transcribedMins,
		c.quotaDenied,
		c.sideEffectFailure,
		c.sessionsStarted,
		c.httpStatus,
	)

	return c
}

// RecordLLMCall は言語モデル呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordLLMCall(op string, err error, duration time.Duration) {
	c.llmRequests.WithLabelValues(op, resultLabel(err)).Inc()
	c.llmLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordArticleFetch は記事取得の結果とレイテンシを記録する。
func (c *Collector) RecordArticleFetch(source string, err error, duration time.Duration) {
	c.articleFetches.WithLabelValues(source, resultLabel(err)).Inc()
	c.articleLatency.Observe(duration.Seconds())
}

// RecordFeedbackCategory はフィードバック1件をカテゴリ別に記録する。
func (c *Collector) RecordFeedbackCategory(category string) {
	c.feedbackItems.WithLabelValues(category).Inc()
}

// RecordFeedbackDegraded は空のフィードバックへの縮退を記録する。
func (c *Collector) RecordFeedbackDegraded(reason string) {
	c.feedbackDegraded.WithLabelValues(reason).Inc()
}

// RecordTranscribedMinutes は文字起こしした分数を加算する。
func (c *Collector) RecordTranscribedMinutes(minutes float64) {
	c.transcribedMins.Add(minutes)
}

// RecordQuotaDenied は使用上限による拒否を記録する。
func (c *Collector) RecordQuotaDenied() {
	c.quotaDenied.Inc()
}

// RecordSideEffectFailure は続行扱いの副作用失敗を記録する。
func (c *Collector) RecordSideEffectFailure(op string) {
	c.sideEffectFailure.WithLabelValues(op).Inc()
}

// RecordSessionStarted はセッション開始を記録する。modeはurlまたはgenerated。
func (c *Collector) RecordSessionStarted(mode string) {
	c.sessionsStarted.WithLabelValues(mode).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
