package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/execution"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/monitoring"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"go.uber.org/zap"
)

// EngineConfig 汇总决策引擎的全部启动参数
type EngineConfig struct {
	Symbol                       string
	Interval                     string
	HistoryBars                  int
	EntryBandPct                 float64
	MaxPortfolioDrawdownFraction float64
	HaltAfterPortfolioStop       bool
	Sizer                        SizerParams
}

// Engine 是决策循环：每个外部 tick 调用一次 RunCycle，
// 串起 拉数据 -> 指标 -> (信号 -> 仓位 | 风控) -> 执行 的完整管线。
// 纯编排，不含策略逻辑；每周期最多发出一条意图。
type Engine struct {
	mu sync.Mutex // 周期之间严格串行，不允许重叠

	cfg     EngineConfig
	exec    execution.Executor
	ta      *ta.Calculator
	signals *SignalGenerator
	sizer   *PositionSizer
	risk    *RiskManager
	logger  *zap.SugaredLogger
}

// NewEngine 组装决策引擎。风控参数在这里做启动校验，非法直接报错（致命）。
func NewEngine(cfg EngineConfig, exec execution.Executor, calc *ta.Calculator, logger *zap.SugaredLogger) (*Engine, error) {
	sizer, err := NewPositionSizer(cfg.Symbol, cfg.Sizer, logger)
	if err != nil {
		return nil, err
	}
	if cfg.HistoryBars < calc.MinHistory()+1 {
		return nil, fmt.Errorf("%w: historyBars %d below required %d",
			model.ErrInvalidRiskParameters, cfg.HistoryBars, calc.MinHistory()+1)
	}

	return &Engine{
		cfg:     cfg,
		exec:    exec,
		ta:      calc,
		signals: NewSignalGenerator(cfg.EntryBandPct, logger),
		sizer:   sizer,
		risk: NewRiskManager(cfg.Sizer.StopMultiplier, cfg.MaxPortfolioDrawdownFraction,
			cfg.HaltAfterPortfolioStop, logger),
		logger: logger,
	}, nil
}

// Risk 暴露风控状态机（状态查询、测试注入）
func (e *Engine) Risk() *RiskManager {
	return e.risk
}

// RunCycle 执行一个完整的决策周期，返回本周期发出的意图（可能为 nil）。
//
// 失败语义：任何数据/指标/仓位计算错误都原子性地作废本周期 ——
// Position 和状态机保持不变，等下一个 tick 重试。周期内部绝不阻塞，
// 阻塞只发生在执行器调用的边界上。
func (e *Engine) RunCycle(ctx context.Context) (*model.OrderIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()

	// --- 1. 边界取数：行情 + 账户。失败只作废本周期 ---
	bars, err := e.exec.FetchPriceHistory(ctx, e.cfg.Symbol, e.cfg.Interval, e.cfg.HistoryBars)
	if err != nil {
		monitoring.RecordCycle("error")
		return nil, fmt.Errorf("cycle %s state %s: fetch price history: %w", now.Format(time.RFC3339), e.risk.State(), err)
	}
	acct, err := e.exec.FetchAccountState(ctx)
	if err != nil {
		monitoring.RecordCycle("error")
		return nil, fmt.Errorf("cycle %s state %s: fetch account state: %w", now.Format(time.RFC3339), e.risk.State(), err)
	}

	// --- 2. 指标：当前快照 + 前一根快照（交叉检测用） ---
	curr, err := e.ta.Compute(bars)
	if err != nil {
		monitoring.RecordCycle("skipped")
		return nil, fmt.Errorf("cycle %s state %s: %w", now.Format(time.RFC3339), e.risk.State(), err)
	}
	prev, err := e.ta.ComputePrev(bars)
	if err != nil {
		monitoring.RecordCycle("skipped")
		return nil, fmt.Errorf("cycle %s state %s: %w", now.Format(time.RFC3339), e.risk.State(), err)
	}

	price := bars[len(bars)-1].Close
	monitoring.RecordMarket(e.cfg.Symbol, price, acct.Equity, acct.OpenPositionPnL)

	// --- 3. 分派：持仓走风控，空仓走信号+仓位 ---
	var intent *model.OrderIntent
	switch e.risk.State() {
	case StateOpen, StateClosing:
		intent = e.risk.Evaluate(price, curr.ATR, acct, now)
		if intent == nil {
			monitoring.RecordCycle("ok")
			return nil, nil
		}
		return e.submit(ctx, intent)

	case StateFlat:
		if e.risk.Halted() {
			e.logger.Debugw("entries halted after portfolio stop, skipping signal check")
			monitoring.RecordCycle("ok")
			return nil, nil
		}

		dir := e.signals.Generate(prev, curr, price)
		if dir == model.DirFlat {
			monitoring.RecordCycle("ok")
			return nil, nil
		}

		intent, err = e.sizer.Size(dir, acct, curr, price, now)
		if err != nil {
			if errors.Is(err, model.ErrSizeBelowMinimum) {
				monitoring.RecordCycle("skipped")
			} else {
				monitoring.RecordCycle("error")
			}
			return nil, fmt.Errorf("cycle %s state FLAT: %w", now.Format(time.RFC3339), err)
		}
		return e.submit(ctx, intent)
	}

	monitoring.RecordCycle("ok")
	return nil, nil
}

// submit 把意图交给执行器，并把回执回灌状态机
func (e *Engine) submit(ctx context.Context, intent *model.OrderIntent) (*model.OrderIntent, error) {
	monitoring.RecordIntent(intent.Symbol, string(intent.Action))

	conf, err := e.exec.SubmitOrder(ctx, *intent)
	if err != nil {
		// 开仓被拒：回到空仓，本周期不再尝试。
		// 平仓被拒：状态机停在 CLOSING，下周期幂等重发。
		// 移动止损被拒：内部止损位已收紧（只紧不松不受影响），下次更有利时重试。
		monitoring.RecordCycle("error")
		e.logger.Errorw("order submission failed",
			"action", string(intent.Action), "err", err)
		return intent, fmt.Errorf("submit %s: %w", intent.Action, err)
	}

	switch intent.Action {
	case model.ActionOpen:
		if conf.Filled {
			if err := e.risk.RecordOpenFill(*intent, conf); err != nil {
				monitoring.RecordCycle("error")
				return intent, err
			}
		} else {
			e.logger.Infow("open order accepted but not filled yet, staying flat this cycle")
		}
	case model.ActionClose:
		if conf.Filled {
			if err := e.risk.RecordCloseFill(conf); err != nil {
				monitoring.RecordCycle("error")
				return intent, err
			}
		} else {
			e.logger.Infow("close order pending, will re-issue next cycle")
		}
	case model.ActionAdjustStop:
		// 无状态转移，止损位已在 Evaluate 中收紧
	}

	monitoring.RecordCycle("ok")
	return intent, nil
}
