package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"go.uber.org/zap"
)

// PositionState 持仓生命周期状态
type PositionState string

const (
	StateFlat    PositionState = "FLAT"    // 空仓，等待信号
	StateOpen    PositionState = "OPEN"    // 持仓中，每周期做风控检查
	StateClosing PositionState = "CLOSING" // 平仓单已发出，等待成交确认
)

// RiskManager 是持仓风控状态机，独占持有 Position：
//
//	FLAT    --开仓成交确认-->  OPEN
//	OPEN    --移动止损-->      OPEN   (自环，止损只收紧)
//	OPEN    --止损/止盈/组合止损--> CLOSING
//	CLOSING --平仓成交确认-->  FLAT
//	CLOSING --确认未到-->      CLOSING (幂等重发同一条平仓意图)
//
// 数据缺失的周期不做任何动作：绝不用过期数据猜测止损位置。
type RiskManager struct {
	mu       sync.RWMutex
	state    PositionState
	position *model.Position

	// 组合止损触发后的停机标志（HaltAfterPortfolioStop 打开时生效）
	halted      bool
	haltPending bool

	// CLOSING 状态下待确认的平仓意图，重复周期原样重发
	pendingClose *model.OrderIntent

	stopMultiplier         float64
	maxDrawdownFraction    float64
	haltAfterPortfolioStop bool
	logger                 *zap.SugaredLogger
}

// NewRiskManager 初始化风控状态机，起始状态为空仓
func NewRiskManager(stopMultiplier, maxDrawdownFraction float64, haltAfterPortfolioStop bool, logger *zap.SugaredLogger) *RiskManager {
	return &RiskManager{
		state:                  StateFlat,
		stopMultiplier:         stopMultiplier,
		maxDrawdownFraction:    maxDrawdownFraction,
		haltAfterPortfolioStop: haltAfterPortfolioStop,
		logger:                 logger,
	}
}

// State 返回当前状态
func (rm *RiskManager) State() PositionState {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.state
}

// Halted 返回引擎是否因组合止损停止开新仓
func (rm *RiskManager) Halted() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.halted
}

// Position 返回当前持仓的副本，空仓时返回 nil
func (rm *RiskManager) Position() *model.Position {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.position == nil {
		return nil
	}
	p := *rm.position
	return &p
}

// RecordOpenFill 记录开仓成交确认，完成 FLAT -> OPEN。
// 单仓约束：非空仓状态下拒绝第二个仓位。
func (rm *RiskManager) RecordOpenFill(intent model.OrderIntent, conf model.OrderConfirmation) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != StateFlat {
		return fmt.Errorf("cannot record open fill in state %s: single position invariant", rm.state)
	}
	if !conf.Filled {
		return fmt.Errorf("open fill recorded without filled confirmation")
	}

	entryPrice := conf.FillPrice
	if entryPrice <= 0 {
		entryPrice = intent.Price
	}

	rm.position = &model.Position{
		Symbol:          intent.Symbol,
		Direction:       intent.Direction,
		Size:            intent.Size,
		EntryPrice:      entryPrice,
		StopLossPrice:   intent.StopLossPrice,
		TakeProfitPrice: intent.TakeProfitPrice,
		OpenedAt:        intent.Timestamp,
	}
	rm.state = StateOpen

	rm.logger.Infow("position opened",
		"direction", rm.position.Direction.String(),
		"size", rm.position.Size,
		"entryPrice", rm.position.EntryPrice,
		"stopLoss", rm.position.StopLossPrice)
	return nil
}

// RecordCloseFill 记录平仓成交确认，完成 CLOSING -> FLAT
func (rm *RiskManager) RecordCloseFill(conf model.OrderConfirmation) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != StateClosing {
		return fmt.Errorf("cannot record close fill in state %s", rm.state)
	}
	if !conf.Filled {
		return fmt.Errorf("close fill recorded without filled confirmation")
	}

	rm.logger.Infow("position closed",
		"exitPrice", conf.FillPrice,
		"entryPrice", rm.position.EntryPrice,
		"direction", rm.position.Direction.String())

	rm.position = nil
	rm.pendingClose = nil
	rm.state = StateFlat

	if rm.haltPending {
		rm.halted = true
		rm.haltPending = false
		rm.logger.Warn("trading halted after portfolio stop loss: restart required to resume entries")
	}
	return nil
}

// Evaluate 在 OPEN / CLOSING 状态下执行一次风控检查，返回本周期的意图（可能为 nil）。
// 调用方必须保证传入的是本周期的新鲜数据；数据缺失的周期不要调用。
//
// 检查顺序：组合止损 > 持仓止损/止盈 > 移动止损。
func (rm *RiskManager) Evaluate(price, atr float64, acct model.AccountState, now time.Time) *model.OrderIntent {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch rm.state {
	case StateClosing:
		// 平仓被拒或确认未到：幂等重发同一条意图
		if rm.pendingClose != nil {
			intent := *rm.pendingClose
			return &intent
		}
		return nil

	case StateOpen:
		pos := rm.position

		// --- 1. 组合止损：浮亏占本金比例达到阈值（闭区间）即强平 ---
		if acct.Bankroll > 0 && acct.OpenPositionPnL/acct.Bankroll <= -rm.maxDrawdownFraction {
			rm.logger.Warnw("PORTFOLIO STOP LOSS TRIGGERED",
				"openPnL", acct.OpenPositionPnL,
				"bankroll", acct.Bankroll,
				"threshold", -rm.maxDrawdownFraction)
			if rm.haltAfterPortfolioStop {
				rm.haltPending = true
			}
			return rm.beginClose(pos, price, now, "portfolio_stop")
		}

		// --- 2. 持仓止损 / 止盈穿越 ---
		if reason := pos.ExitTrigger(price); reason != "" {
			return rm.beginClose(pos, price, now, reason)
		}

		// --- 3. 移动止损：候选位更有利时收紧，绝不放松 ---
		candidate := trailingCandidate(pos.Direction, price, atr, rm.stopMultiplier)
		if tightens(pos.Direction, candidate, pos.StopLossPrice) && candidate > 0 {
			rm.logger.Infow("trailing stop tightened",
				"from", pos.StopLossPrice, "to", candidate, "price", price)
			pos.StopLossPrice = candidate
			return &model.OrderIntent{
				Symbol:        pos.Symbol,
				Timestamp:     now,
				Action:        model.ActionAdjustStop,
				Direction:     pos.Direction,
				Size:          pos.Size,
				Price:         price,
				StopLossPrice: candidate,
				Reason:        "trailing_stop",
			}
		}
		return nil

	default:
		return nil
	}
}

// beginClose 切换到 CLOSING 并缓存待确认的平仓意图（调用方持锁）
func (rm *RiskManager) beginClose(pos *model.Position, price float64, now time.Time, reason string) *model.OrderIntent {
	intent := &model.OrderIntent{
		Symbol:    pos.Symbol,
		Timestamp: now,
		Action:    model.ActionClose,
		Direction: pos.Direction,
		Size:      pos.Size,
		Price:     price,
		Reason:    reason,
	}
	rm.state = StateClosing
	rm.pendingClose = intent

	rm.logger.Infow("close intent issued",
		"reason", reason, "price", price, "stopLoss", pos.StopLossPrice)

	out := *intent
	return &out
}

// trailingCandidate 计算候选止损位 = 当前价 ∓ ATR * multiplier
func trailingCandidate(dir model.Direction, price, atr, multiplier float64) float64 {
	if dir == model.DirLong {
		return price - atr*multiplier
	}
	return price + atr*multiplier
}

// tightens 判断候选止损是否比当前止损更贴近价格的有利方向
func tightens(dir model.Direction, candidate, current float64) bool {
	if dir == model.DirLong {
		return candidate > current
	}
	return candidate < current
}
