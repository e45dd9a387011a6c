package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/data"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"go.uber.org/zap"
)

// SimulatorConfig 模拟执行器配置
type SimulatorConfig struct {
	Symbol   string
	Bankroll float64 // 初始资金，同时作为 AccountState.Bankroll
	LotSize  float64 // 每张合约的标的数量
	FeeRate  float64 // 单边手续费率 (例如 0.0005)
}

// SimulatorExecutor 实现 Executor 接口的纸面交易执行器：
// 行情来自 History 缓冲区，成交按意图价格立即回执，
// 账户只记 余额/净值/最高净值 和已平仓的 TradeRecord。
// 测试和纸面模式共用。
type SimulatorExecutor struct {
	cfg     *SimulatorConfig
	history *data.History
	logger  *zap.SugaredLogger

	mu sync.RWMutex // 保护账户状态

	balance   float64 // 账户余额（含已实现盈亏，扣手续费）
	maxEquity float64 // 历史最高净值
	position  *model.Position

	tradeHistory []*model.TradeRecord
}

// NewSimulatorExecutor 构造模拟执行器
func NewSimulatorExecutor(cfg *SimulatorConfig, history *data.History, logger *zap.SugaredLogger) *SimulatorExecutor {
	return &SimulatorExecutor{
		cfg:       cfg,
		history:   history,
		logger:    logger.With("executor", "simulator"),
		balance:   cfg.Bankroll,
		maxEquity: cfg.Bankroll,
	}
}

// FetchPriceHistory 直接返回缓冲区快照，空缓冲区视为数据不可用
func (e *SimulatorExecutor) FetchPriceHistory(ctx context.Context, symbol, interval string, minBars int) ([]model.PriceBar, error) {
	bars := e.history.Snapshot()
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: simulator history empty", model.ErrDataUnavailable)
	}
	return bars, nil
}

// FetchAccountState 按最新收盘价计算浮盈亏和净值
func (e *SimulatorExecutor) FetchAccountState(ctx context.Context) (model.AccountState, error) {
	bars := e.history.Snapshot()
	if len(bars) == 0 {
		return model.AccountState{}, fmt.Errorf("%w: simulator history empty", model.ErrDataUnavailable)
	}
	lastPrice := bars[len(bars)-1].Close

	e.mu.Lock()
	defer e.mu.Unlock()

	upl := e.unrealizedPnL(lastPrice)
	equity := e.balance + upl
	if equity > e.maxEquity {
		e.maxEquity = equity
	}

	return model.AccountState{
		Bankroll:        e.cfg.Bankroll,
		Equity:          equity,
		OpenPositionPnL: upl,
	}, nil
}

// SubmitOrder 模拟撮合：意图价格立即全额成交
func (e *SimulatorExecutor) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch intent.Action {
	case model.ActionOpen:
		if e.position != nil {
			return model.OrderConfirmation{}, fmt.Errorf("%w: simulator already holds a position", model.ErrOrderRejected)
		}

		notional := intent.Size * e.cfg.LotSize * intent.Price
		fee := notional * e.cfg.FeeRate
		if fee >= e.balance {
			return model.OrderConfirmation{}, fmt.Errorf("%w: insufficient balance for fee %.4f", model.ErrOrderRejected, fee)
		}
		e.balance -= fee

		e.position = &model.Position{
			Symbol:          intent.Symbol,
			Direction:       intent.Direction,
			Size:            intent.Size,
			EntryPrice:      intent.Price,
			StopLossPrice:   intent.StopLossPrice,
			TakeProfitPrice: intent.TakeProfitPrice,
			OpenedAt:        intent.Timestamp,
		}
		e.logger.Infow("SIM FILLED (OPEN)",
			"direction", intent.Direction.String(), "size", intent.Size,
			"price", intent.Price, "fee", fee, "stopLoss", intent.StopLossPrice)
		return model.OrderConfirmation{Filled: true, FillPrice: intent.Price}, nil

	case model.ActionAdjustStop:
		if e.position == nil {
			return model.OrderConfirmation{}, fmt.Errorf("%w: no position to adjust", model.ErrOrderRejected)
		}
		e.position.StopLossPrice = intent.StopLossPrice
		return model.OrderConfirmation{Filled: true, FillPrice: intent.StopLossPrice}, nil

	case model.ActionClose:
		if e.position == nil {
			return model.OrderConfirmation{}, fmt.Errorf("%w: no position to close", model.ErrOrderRejected)
		}

		exitPrice := intent.Price
		pnl := e.realizedPnL(exitPrice)
		fee := e.position.Size * e.cfg.LotSize * exitPrice * e.cfg.FeeRate
		e.balance += pnl - fee

		e.tradeHistory = append(e.tradeHistory, &model.TradeRecord{
			EntryTime:     e.position.OpenedAt,
			ExitTime:      intent.Timestamp,
			Symbol:        e.position.Symbol,
			PosSide:       e.position.Direction,
			EntryPrice:    e.position.EntryPrice,
			ExitPrice:     exitPrice,
			Size:          e.position.Size,
			RealizedPnL:   pnl,
			Fee:           fee,
			TriggerReason: intent.Reason,
		})

		e.logger.Infow("SIM FILLED (CLOSE)",
			"exitPrice", exitPrice, "pnl", pnl, "fee", fee, "reason", intent.Reason)
		e.position = nil
		return model.OrderConfirmation{Filled: true, FillPrice: exitPrice}, nil

	default:
		return model.OrderConfirmation{}, fmt.Errorf("%w: unsupported action %s", model.ErrOrderRejected, intent.Action)
	}
}

// TradeHistory 返回已平仓交易记录的副本
func (e *SimulatorExecutor) TradeHistory() []*model.TradeRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*model.TradeRecord, len(e.tradeHistory))
	copy(out, e.tradeHistory)
	return out
}

// MaxEquity 返回历史最高净值
func (e *SimulatorExecutor) MaxEquity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxEquity
}

// Balance 返回当前余额
func (e *SimulatorExecutor) Balance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance
}

// unrealizedPnL 按最新价计算浮盈亏（调用方持锁）
func (e *SimulatorExecutor) unrealizedPnL(lastPrice float64) float64 {
	if e.position == nil {
		return 0
	}
	return e.realizedPnL(lastPrice)
}

// realizedPnL 按给定平仓价计算盈亏（调用方持锁，position 非 nil）
func (e *SimulatorExecutor) realizedPnL(exitPrice float64) float64 {
	diff := exitPrice - e.position.EntryPrice
	if e.position.Direction == model.DirShort {
		diff = -diff
	}
	return diff * e.position.Size * e.cfg.LotSize
}

var (
	_ Executor = (*SimulatorExecutor)(nil)
	_ Executor = (*DeltaExecutor)(nil)
)
