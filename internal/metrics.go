package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus 指標
//
// type 標籤只使用分發認得的固定集合（未知類型歸入 unknown），
// 避免客戶端控制的字串造成標籤爆炸。
var (
	metricActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Name:      "active_rooms",
		Help:      "目前存在的房間數",
	})

	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Name:      "active_connections",
		Help:      "目前註冊的使用者連線數",
	})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Name:      "messages_total",
		Help:      "處理過的入站訊息數（依類型）",
	}, []string{"type"})

	metricJoinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Name:      "join_rejections_total",
		Help:      "被拒絕的加入請求數（依原因）",
	}, []string{"reason"})
)

// MetricsHandler 暴露 /metrics 端點
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
