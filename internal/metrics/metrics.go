package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"world-helipads/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	PointsLoadedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helipads_points_loaded_total",
		Help: "Point records produced by source parsers",
	}, []string{"source"})
	PointsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helipads_points_skipped_total",
		Help: "Source elements dropped by parsers (no geometry)",
	}, []string{"source"})
	ClassifierQueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_classifier_queries_total",
		Help: "Radius queries issued by the proximity classifier",
	})
	ClassifierMatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_classifier_matched_total",
		Help: "Candidate records flagged as matched",
	})
	ClassifierDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "helipads_classifier_duration_ms",
		Help:    "Proximity classification duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000},
	})
	MergeOutputPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helipads_merge_output_points",
		Help: "Records in the last merged point set",
	})
	MergeExactDuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_merge_exact_duplicates_total",
		Help: "Records dropped by exact-coordinate deduplication",
	})
	OverpassRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_overpass_requests_total",
		Help: "Total Overpass API requests",
	})
	OverpassFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_overpass_fail_total",
		Help: "Total failed Overpass API requests",
	})
	OverpassCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helipads_overpass_cache_hits_total",
		Help: "Overpass tiles served from the tile cache",
	})
	OverpassDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "helipads_overpass_duration_ms",
		Help:    "Overpass API call duration in milliseconds",
		Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000},
	})
	BucketDownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helipads_bucket_downloads_total",
		Help: "Object storage downloads by status",
	}, []string{"status"})
	ExportRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helipads_export_rows_total",
		Help: "Rows written to navigation-tool export files",
	}, []string{"region"})
)

func init() {
	prometheus.MustRegister(PointsLoadedTotal)
	prometheus.MustRegister(PointsSkippedTotal)
	prometheus.MustRegister(ClassifierQueriesTotal)
	prometheus.MustRegister(ClassifierMatchedTotal)
	prometheus.MustRegister(ClassifierDurationMs)
	prometheus.MustRegister(MergeOutputPoints)
	prometheus.MustRegister(MergeExactDuplicatesTotal)
	prometheus.MustRegister(OverpassRequestsTotal)
	prometheus.MustRegister(OverpassFailTotal)
	prometheus.MustRegister(OverpassCacheHitsTotal)
	prometheus.MustRegister(OverpassDurationMs)
	prometheus.MustRegister(BucketDownloadsTotal)
	prometheus.MustRegister(ExportRowsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：长时间运行的下载/合并批次可由 METRICS_ADDR 暴露 /metrics 供抓取。
func Handler() http.Handler { return promhttp.Handler() }

// 文档注释：批次结束时推送指标到 Pushgateway
// 背景：批处理进程生命周期短，抓取模式可能错过；url 为空时不推送。
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}

// 文档注释：在 addr 上暴露 /metrics
// 背景：下载阶段可能持续数小时，运行期间可抓取进度指标；addr 为空时不启动。
// 返回：服务实例，由调用方在批次结束时关闭。
func Serve(addr string, l *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &http.Server{Addr: addr, Handler: logger.AccessMiddleware(l)(mux)}
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics_server_error", "err", err)
		}
	}()
	l.Info("metrics_server_start", "addr", addr)
	return s
}
