package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/api"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/data"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/service"
	"go.uber.org/zap"
)

// DeltaConfig 定义 Delta 执行器所需的全部配置
type DeltaConfig struct {
	Symbol    string
	ProductID int
	Bankroll  float64
}

// DeltaExecutor 把核心意图转换成 Delta Exchange 的订单操作：
//   - OPEN: 限价入场单 + 止损市价触发单 + 止盈市价触发单（括号下单）
//   - ADJUST_STOP: 撤旧止损触发单、挂新止损触发单
//   - CLOSE: 撤掉全部挂单后市价反向平仓
//
// 入场用 GTC 限价单，回执按已成交处理（与仓位的最终对账
// 靠每周期的 FetchAccountState 持仓查询兜底）。
type DeltaExecutor struct {
	cfg    *DeltaConfig
	client *api.Client
	// 实时行情缓冲：WS 喂价，REST 兜底。够长时直接用，避免每周期全量拉取
	history *data.History
	logger  *zap.SugaredLogger

	stopOrderID int64 // 当前止损触发单，移动止损时撤换
	tpOrderID   int64 // 当前止盈触发单
}

// NewDeltaExecutor 初始化 Delta 执行器
func NewDeltaExecutor(cfg *DeltaConfig, client *api.Client, history *data.History, logger *zap.SugaredLogger) *DeltaExecutor {
	return &DeltaExecutor{
		cfg:     cfg,
		client:  client,
		history: history,
		logger:  logger.With("executor", "delta"),
	}
}

// FetchPriceHistory 返回升序 K 线。缓冲区够长直接取，否则 REST 拉取并回填缓冲区。
func (e *DeltaExecutor) FetchPriceHistory(ctx context.Context, symbol, interval string, minBars int) ([]model.PriceBar, error) {
	if e.history != nil && e.history.Len() >= minBars {
		return e.history.Snapshot(), nil
	}

	dur, err := service.ParseIntervalDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	end := time.Now().UTC()
	// 多拉 10% 余量，交易所节假日缺根时仍能凑够
	start := end.Add(-dur * time.Duration(minBars+minBars/10+1))

	bars, err := e.client.GetCandles(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	if e.history != nil {
		if err := e.history.Replace(bars); err != nil {
			e.logger.Warnw("rest candles rejected by history buffer", "err", err)
		}
	}
	return bars, nil
}

// FetchAccountState 组装账户快照：净值来自钱包余额，浮盈亏来自持仓查询
func (e *DeltaExecutor) FetchAccountState(ctx context.Context) (model.AccountState, error) {
	equity, err := e.client.GetEquity(ctx)
	if err != nil {
		return model.AccountState{}, err
	}

	openPnL := 0.0
	pos, err := e.client.GetPosition(ctx, e.cfg.ProductID)
	if err != nil {
		return model.AccountState{}, err
	}
	if pos != nil && pos.UnrealizedPnL != "" {
		if v, err := strconv.ParseFloat(pos.UnrealizedPnL, 64); err == nil {
			openPnL = v
		}
	}

	return model.AccountState{
		Bankroll:        e.cfg.Bankroll,
		Equity:          equity,
		OpenPositionPnL: openPnL,
	}, nil
}

// SubmitOrder 执行一条交易意图
func (e *DeltaExecutor) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error) {
	switch intent.Action {
	case model.ActionOpen:
		return e.openPosition(ctx, intent)
	case model.ActionAdjustStop:
		return e.adjustStop(ctx, intent)
	case model.ActionClose:
		return e.closePosition(ctx, intent)
	default:
		return model.OrderConfirmation{}, fmt.Errorf("%w: unsupported action %s", model.ErrOrderRejected, intent.Action)
	}
}

func (e *DeltaExecutor) openPosition(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error) {
	entrySide, exitSide := sides(intent.Direction)
	size := int(intent.Size + 0.5)

	entry, err := e.client.PlaceOrder(ctx, api.OrderRequest{
		ProductID:   e.cfg.ProductID,
		Size:        size,
		Side:        entrySide,
		OrderType:   "limit_order",
		LimitPrice:  formatPrice(intent.Price),
		TimeInForce: "gtc",
	})
	if err != nil {
		return model.OrderConfirmation{}, err
	}
	e.logger.Infow("entry order placed", "orderID", entry.ID, "side", entrySide, "size", size)

	// 止损和止盈触发单构成括号。任何一条失败就撤掉全部挂单，
	// 绝不让仓位在没有止损保护的状态下存在。
	stop, err := e.client.PlaceOrder(ctx, api.OrderRequest{
		ProductID: e.cfg.ProductID,
		Size:      size,
		Side:      exitSide,
		OrderType: "market_order",
		StopOrder: true,
		StopPrice: formatPrice(intent.StopLossPrice),
	})
	if err != nil {
		e.rollbackOrders(ctx)
		return model.OrderConfirmation{}, fmt.Errorf("%w: stop order placement failed: %v", model.ErrOrderRejected, err)
	}

	tp, err := e.client.PlaceOrder(ctx, api.OrderRequest{
		ProductID: e.cfg.ProductID,
		Size:      size,
		Side:      exitSide,
		OrderType: "market_order",
		StopOrder: true,
		StopPrice: formatPrice(intent.TakeProfitPrice),
	})
	if err != nil {
		e.rollbackOrders(ctx)
		return model.OrderConfirmation{}, fmt.Errorf("%w: take profit placement failed: %v", model.ErrOrderRejected, err)
	}

	e.stopOrderID = stop.ID
	e.tpOrderID = tp.ID

	return model.OrderConfirmation{Filled: true, FillPrice: intent.Price}, nil
}

func (e *DeltaExecutor) adjustStop(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error) {
	_, exitSide := sides(intent.Direction)

	if e.stopOrderID != 0 {
		if err := e.client.CancelOrder(ctx, e.stopOrderID); err != nil {
			return model.OrderConfirmation{}, fmt.Errorf("%w: cancel old stop: %v", model.ErrOrderRejected, err)
		}
	}

	stop, err := e.client.PlaceOrder(ctx, api.OrderRequest{
		ProductID: e.cfg.ProductID,
		Size:      int(intent.Size + 0.5),
		Side:      exitSide,
		OrderType: "market_order",
		StopOrder: true,
		StopPrice: formatPrice(intent.StopLossPrice),
	})
	if err != nil {
		return model.OrderConfirmation{}, err
	}

	e.logger.Infow("trailing stop replaced", "orderID", stop.ID, "stopPrice", intent.StopLossPrice)
	e.stopOrderID = stop.ID
	return model.OrderConfirmation{Filled: true, FillPrice: intent.StopLossPrice}, nil
}

func (e *DeltaExecutor) closePosition(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error) {
	// 先撤掉止损/止盈挂单，避免平仓后触发单反向开仓
	if err := e.client.CancelAllOrders(ctx, e.cfg.ProductID); err != nil {
		return model.OrderConfirmation{}, fmt.Errorf("%w: cancel open orders: %v", model.ErrOrderRejected, err)
	}

	_, exitSide := sides(intent.Direction)
	order, err := e.client.PlaceOrder(ctx, api.OrderRequest{
		ProductID: e.cfg.ProductID,
		Size:      int(intent.Size + 0.5),
		Side:      exitSide,
		OrderType: "market_order",
	})
	if err != nil {
		return model.OrderConfirmation{}, err
	}

	e.logger.Infow("close order placed", "orderID", order.ID, "reason", intent.Reason)
	e.stopOrderID = 0
	e.tpOrderID = 0
	return model.OrderConfirmation{Filled: true, FillPrice: intent.Price}, nil
}

// rollbackOrders 括号下单中途失败时的清场
func (e *DeltaExecutor) rollbackOrders(ctx context.Context) {
	if err := e.client.CancelAllOrders(ctx, e.cfg.ProductID); err != nil {
		e.logger.Errorw("rollback cancel failed, manual intervention may be required", "err", err)
	}
}

func sides(dir model.Direction) (entry, exit string) {
	if dir == model.DirLong {
		return "buy", "sell"
	}
	return "sell", "buy"
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
