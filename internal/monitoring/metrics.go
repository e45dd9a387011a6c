package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ma_bot_cycles_total",
			Help: "Total number of decision cycles by outcome",
		},
		[]string{"outcome"}, // ok / skipped / error
	)

	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ma_bot_intents_total",
			Help: "Total number of order intents emitted by action",
		},
		[]string{"symbol", "action"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ma_bot_current_price",
			Help: "Latest close price of the trading symbol",
		},
		[]string{"symbol"},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ma_bot_account_equity",
			Help: "Account equity reported by the exchange",
		},
	)

	openPositionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ma_bot_open_position_pnl",
			Help: "Unrealized PnL of the open position",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(intentsTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(openPositionPnL)
}

// RecordCycle 按结果记录一次决策周期
func RecordCycle(outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordIntent 记录一条已发出的交易意图
func RecordIntent(symbol, action string) {
	intentsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordMarket 更新行情和账户观测值
func RecordMarket(symbol string, price, equity, openPnL float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
	accountEquity.Set(equity)
	openPositionPnL.Set(openPnL)
}

// Handler 返回 /metrics 的 HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
