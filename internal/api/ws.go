package api

import (
	"encoding/json"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/service"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsSubscribeMsg Delta WS 订阅请求
type wsSubscribeMsg struct {
	Type    string `json:"type"`
	Payload struct {
		Channels []wsChannel `json:"channels"`
	} `json:"payload"`
}

type wsChannel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// wsTickerMsg v2/ticker 频道推送（只取用到的字段）
type wsTickerMsg struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"mark_price"`
	Close     string `json:"close"`
	Timestamp int64  `json:"timestamp"` // 微秒时间戳
}

// Feed 订阅 Delta 的 v2/ticker 频道，把标记价格转成内部 Ticker 推给下游。
// 断线后固定间隔重连，不做指数退避（行情缺口由 REST 轮询兜底）。
type Feed struct {
	wsURL      string
	symbol     string
	tickerChan chan model.Ticker
	logger     *zap.SugaredLogger
}

// NewFeed 初始化行情订阅器
func NewFeed(wsURL, symbol string, logger *zap.SugaredLogger) *Feed {
	return &Feed{
		wsURL:      wsURL,
		symbol:     symbol,
		tickerChan: make(chan model.Ticker, 256),
		logger:     logger,
	}
}

// GetTickerChannel 供 History 消费实时价格
func (f *Feed) GetTickerChannel() <-chan model.Ticker {
	return f.tickerChan
}

// Start 启动连接和读循环，阻塞运行，应放在独立 Goroutine 中
func (f *Feed) Start() {
	for {
		if err := f.connectAndRead(); err != nil {
			f.logger.Errorw("ws connection lost, reconnecting in 5s", "err", err)
		}
		time.Sleep(5 * time.Second)
	}
}

func (f *Feed) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := wsSubscribeMsg{Type: "subscribe"}
	sub.Payload.Channels = []wsChannel{{Name: "v2/ticker", Symbols: []string{f.symbol}}}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	f.logger.Infow("subscribed to delta ticker stream", "symbol", f.symbol)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsTickerMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "v2/ticker" || msg.Symbol != f.symbol {
			continue
		}

		raw := msg.MarkPrice
		if raw == "" {
			raw = msg.Close
		}
		price, err := service.StringToFloat(raw)
		if err != nil {
			continue
		}

		ticker := model.Ticker{
			Symbol:    msg.Symbol,
			Timestamp: msg.Timestamp / 1000, // 微秒 -> 毫秒
			Price:     price,
		}

		// select/default 防止下游消费慢时阻塞读循环
		select {
		case f.tickerChan <- ticker:
		default:
			f.logger.Debugw("ticker channel full, dropping snapshot", "symbol", f.symbol)
		}
	}
}
