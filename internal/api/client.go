package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"go.uber.org/zap"
)

// Client 是 Delta Exchange V2 REST 客户端。
// 鉴权：HMAC-SHA256(secret, method + timestamp + path + queryString + payload)。
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient 初始化 Delta REST 客户端
func NewClient(baseURL, apiKey, apiSecret string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Sign 按 Delta 规范生成签名串的 HMAC-SHA256 十六进制摘要。
// 拼接顺序：method + timestamp + requestPath + queryString + payload。
func Sign(secret, method, timestamp, requestPath, queryString, payload string) string {
	message := method + timestamp + requestPath + queryString + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// apiEnvelope Delta V2 的统一响应外壳
type apiEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// do 发起一次带签名的请求并解出 result。
// 网络/HTTP/业务失败统一归为 model.ErrDataUnavailable，由调用方决定语义。
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		// Delta 签名要求 payload 与发送字节完全一致，这里统一用紧凑 JSON
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	queryString := ""
	if len(params) > 0 {
		queryString = "?" + encodeSorted(params)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := Sign(c.apiSecret, method, timestamp, path, queryString, string(payload))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+queryString, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("signature", signature)
	req.Header.Set("User-Agent", "ma-algorithm-strategy/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", model.ErrDataUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrDataUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnw("delta api returned non-2xx",
			"method", method, "path", path, "status", resp.StatusCode, "body", string(raw))
		return nil, fmt.Errorf("%w: %s %s: status %d", model.ErrDataUnavailable, method, path, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", model.ErrDataUnavailable, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s %s: api error %s", model.ErrDataUnavailable, method, path, string(env.Error))
	}
	return env.Result, nil
}

// encodeSorted 按 key 排序编码查询串，保证签名串稳定
func encodeSorted(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		for _, v := range params[k] {
			if buf.Len() > 0 {
				buf.WriteByte('&')
			}
			buf.WriteString(url.QueryEscape(k))
			buf.WriteByte('=')
			buf.WriteString(url.QueryEscape(v))
		}
	}
	return buf.String()
}

// TickerData /v2/tickers 里单个交易对的字段（只取用到的）
type TickerData struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"mark_price"`
	Close     string `json:"close"`
}

// GetTickerPrice 获取最新标记价格（mark_price 缺失时退回 close）
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	result, err := c.do(ctx, http.MethodGet, "/v2/tickers", params, nil)
	if err != nil {
		return 0, err
	}

	var tickers []TickerData
	if err := json.Unmarshal(result, &tickers); err != nil {
		return 0, fmt.Errorf("%w: decode tickers: %v", model.ErrDataUnavailable, err)
	}
	for _, t := range tickers {
		if t.Symbol != symbol {
			continue
		}
		raw := t.MarkPrice
		if raw == "" {
			raw = t.Close
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: ticker price %q: %v", model.ErrDataUnavailable, raw, err)
		}
		return price, nil
	}
	return 0, fmt.Errorf("%w: symbol %s not in ticker response", model.ErrDataUnavailable, symbol)
}

type candleData struct {
	Time   int64   `json:"time"` // 秒级时间戳
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// GetCandles 拉取历史 K 线，返回按时间升序的序列
func (c *Client) GetCandles(ctx context.Context, symbol, resolution string, start, end time.Time) ([]model.PriceBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))

	result, err := c.do(ctx, http.MethodGet, "/v2/history/candles", params, nil)
	if err != nil {
		return nil, err
	}

	var candles []candleData
	if err := json.Unmarshal(result, &candles); err != nil {
		return nil, fmt.Errorf("%w: decode candles: %v", model.ErrDataUnavailable, err)
	}

	bars := make([]model.PriceBar, 0, len(candles))
	for _, cd := range candles {
		bars = append(bars, model.PriceBar{
			Symbol:    symbol,
			Timestamp: time.Unix(cd.Time, 0).UTC(),
			Open:      cd.Open,
			High:      cd.High,
			Low:       cd.Low,
			Close:     cd.Close,
			Volume:    cd.Volume,
		})
	}
	// Delta 返回可能是倒序，统一翻转成升序
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

type balanceEntry struct {
	USDValue string `json:"usd_value"`
	Balance  string `json:"balance"`
}

// GetEquity 汇总钱包余额为账户净值（优先 usd_value，缺失用 balance）
func (c *Client) GetEquity(ctx context.Context) (float64, error) {
	result, err := c.do(ctx, http.MethodGet, "/v2/wallet/balances", nil, nil)
	if err != nil {
		return 0, err
	}

	var entries []balanceEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return 0, fmt.Errorf("%w: decode balances: %v", model.ErrDataUnavailable, err)
	}

	equity := 0.0
	for _, e := range entries {
		raw := e.USDValue
		if raw == "" {
			raw = e.Balance
		}
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		equity += v
	}
	return equity, nil
}

// PositionData /v2/positions/margined 的持仓字段（只取用到的）
type PositionData struct {
	ProductID     int     `json:"product_id"`
	Size          float64 `json:"size"` // 正数多头，负数空头
	EntryPrice    string  `json:"entry_price"`
	UnrealizedPnL string  `json:"unrealized_pnl"`
}

// GetPosition 查询指定产品的保证金持仓，无持仓返回 nil
func (c *Client) GetPosition(ctx context.Context, productID int) (*PositionData, error) {
	params := url.Values{}
	params.Set("product_id", strconv.Itoa(productID))

	result, err := c.do(ctx, http.MethodGet, "/v2/positions/margined", params, nil)
	if err != nil {
		return nil, err
	}

	var positions []PositionData
	if err := json.Unmarshal(result, &positions); err != nil {
		return nil, fmt.Errorf("%w: decode positions: %v", model.ErrDataUnavailable, err)
	}
	for i := range positions {
		if positions[i].ProductID == productID && positions[i].Size != 0 {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// OrderRequest 下单参数
type OrderRequest struct {
	ProductID   int    `json:"product_id"`
	Size        int    `json:"size"`
	Side        string `json:"side"`       // buy / sell
	OrderType   string `json:"order_type"` // limit_order / market_order
	LimitPrice  string `json:"limit_price,omitempty"`
	StopPrice   string `json:"stop_price,omitempty"`
	StopOrder   bool   `json:"stop_order,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"`
}

// OrderResponse 下单回执（只取用到的）
type OrderResponse struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
}

// PlaceOrder 提交一笔订单
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	result, err := c.do(ctx, http.MethodPost, "/v2/orders", nil, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrOrderRejected, err)
	}
	var order OrderResponse
	if err := json.Unmarshal(result, &order); err != nil {
		return nil, fmt.Errorf("%w: decode order response: %v", model.ErrOrderRejected, err)
	}
	return &order, nil
}

// CancelOrder 撤销一笔订单
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v2/orders/%d", orderID), nil, nil)
	return err
}

// CancelAllOrders 撤销某产品的全部挂单
func (c *Client) CancelAllOrders(ctx context.Context, productID int) error {
	params := url.Values{}
	params.Set("product_id", strconv.Itoa(productID))
	_, err := c.do(ctx, http.MethodDelete, "/v2/orders", params, nil)
	return err
}
