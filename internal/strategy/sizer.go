package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"go.uber.org/zap"
)

// 分级初始保证金：10 万 USD 名义价值以内 0.5%，超出部分按名义价值线性加收
const (
	baseMarginRate     = 0.005
	marginTierNotional = 100_000.0
	marginTierSlope    = 2.5e-8 // 每超出 1 USD 名义价值增加的保证金率
)

// SizerParams 汇总仓位计算所需的全部风控参数，加载后不可变
type SizerParams struct {
	WinProbability    float64 // Kelly 胜率 p
	RewardRiskRatio   float64 // Kelly 赔率 b（同时用于止盈距离）
	KellyFraction     float64 // Kelly 系数（0.5 即半 Kelly）
	MaxMarginFraction float64 // f 和初始保证金占本金比例的共同上限
	StopMultiplier    float64 // 止损距离 = ATR * StopMultiplier
	LotSize           float64 // 每张合约的标的数量
}

// Validate 校验风控参数。非法参数属于配置缺陷，启动时直接致命。
func (p SizerParams) Validate() error {
	if p.WinProbability < 0 || p.WinProbability > 1 {
		return fmt.Errorf("%w: winProbability %.4f not in [0,1]",
			model.ErrInvalidRiskParameters, p.WinProbability)
	}
	if p.RewardRiskRatio <= 0 {
		return fmt.Errorf("%w: rewardRiskRatio %.4f must be > 0",
			model.ErrInvalidRiskParameters, p.RewardRiskRatio)
	}
	if p.KellyFraction <= 0 || p.KellyFraction > 1 {
		return fmt.Errorf("%w: kellyFraction %.4f not in (0,1]",
			model.ErrInvalidRiskParameters, p.KellyFraction)
	}
	if p.MaxMarginFraction <= 0 || p.MaxMarginFraction > 1 {
		return fmt.Errorf("%w: maxMarginFraction %.4f not in (0,1]",
			model.ErrInvalidRiskParameters, p.MaxMarginFraction)
	}
	if p.StopMultiplier <= 0 {
		return fmt.Errorf("%w: stopMultiplier %.4f must be > 0",
			model.ErrInvalidRiskParameters, p.StopMultiplier)
	}
	if p.LotSize <= 0 {
		return fmt.Errorf("%w: lotSize %.4f must be > 0",
			model.ErrInvalidRiskParameters, p.LotSize)
	}
	return nil
}

// Kelly 计算本金投入比例 f = kellyFraction * (p - (1-p)/b)，
// 并夹在 [0, MaxMarginFraction] 内。
func (p SizerParams) Kelly() float64 {
	f := p.KellyFraction * (p.WinProbability - (1-p.WinProbability)/p.RewardRiskRatio)
	return math.Max(0, math.Min(f, p.MaxMarginFraction))
}

// PositionSizer 把方向信号 + 账户快照换算成一条开仓意图。
// 确定性纯函数，无副作用。
type PositionSizer struct {
	symbol string
	params SizerParams
	logger *zap.SugaredLogger
}

// NewPositionSizer 构造仓位计算器，参数非法时返回错误（调用方应视为致命）
func NewPositionSizer(symbol string, params SizerParams, logger *zap.SugaredLogger) (*PositionSizer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PositionSizer{symbol: symbol, params: params, logger: logger}, nil
}

// Size 计算开仓意图：
//  1. Kelly 比例 f 确定保证金预算 = f * bankroll
//  2. 按当前价格、合约面值和初始保证金率换算成张数（向下取整）
//  3. 张数对应的实际保证金超过 MaxMarginFraction * bankroll 时再收缩
//
// 张数取整后为零时返回 model.ErrSizeBelowMinimum，调用方跳过本次交易。
func (ps *PositionSizer) Size(
	dir model.Direction,
	acct model.AccountState,
	snap ta.Snapshot,
	price float64,
	now time.Time,
) (*model.OrderIntent, error) {
	if dir != model.DirLong && dir != model.DirShort {
		return nil, fmt.Errorf("size called with non-directional signal %q", dir)
	}
	if price <= 0 || snap.ATR <= 0 {
		return nil, fmt.Errorf("%w: price %.4f / atr %.4f not positive",
			model.ErrInsufficientData, price, snap.ATR)
	}

	f := ps.params.Kelly()
	if f <= 0 {
		return nil, fmt.Errorf("%w: kelly fraction %.4f yields no edge", model.ErrSizeBelowMinimum, f)
	}

	marginBudget := f * acct.Bankroll

	// 第一轮换算用基础保证金率，拿到名义价值后再按分级费率复核
	unitMargin := price * ps.params.LotSize * baseMarginRate
	contracts := math.Floor(marginBudget / unitMargin)
	if contracts < 1 {
		return nil, fmt.Errorf("%w: budget %.2f buys no contract at price %.2f",
			model.ErrSizeBelowMinimum, marginBudget, price)
	}

	notional := contracts * price * ps.params.LotSize
	rate := initialMarginRate(notional)
	requiredMargin := notional * rate

	if maxMargin := ps.params.MaxMarginFraction * acct.Bankroll; requiredMargin > maxMargin {
		contracts = math.Floor(maxMargin / (price * ps.params.LotSize * rate))
		if contracts < 1 {
			return nil, fmt.Errorf("%w: margin cap %.2f buys no contract",
				model.ErrSizeBelowMinimum, maxMargin)
		}
		requiredMargin = contracts * price * ps.params.LotSize * rate
		ps.logger.Warnw("position size reduced by margin constraint",
			"contracts", contracts, "requiredMargin", requiredMargin)
	}

	slDistance := snap.ATR * ps.params.StopMultiplier
	tpDistance := slDistance * ps.params.RewardRiskRatio

	var stopLoss, takeProfit float64
	if dir == model.DirLong {
		stopLoss = price - slDistance
		takeProfit = price + tpDistance
	} else {
		stopLoss = price + slDistance
		takeProfit = price - tpDistance
	}
	if stopLoss <= 0 {
		return nil, fmt.Errorf("%w: computed stop loss %.4f not positive",
			model.ErrSizeBelowMinimum, stopLoss)
	}

	intent := &model.OrderIntent{
		Symbol:          ps.symbol,
		Timestamp:       now,
		Action:          model.ActionOpen,
		Direction:       dir,
		Size:            contracts,
		Price:           price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		Reason:          fmt.Sprintf("kelly f=%.4f margin=%.2f", f, requiredMargin),
	}

	ps.logger.Infow("open intent sized",
		"direction", dir.String(),
		"contracts", contracts,
		"price", price,
		"stopLoss", stopLoss,
		"takeProfit", takeProfit,
		"kellyFraction", f,
		"requiredMargin", requiredMargin)

	return intent, nil
}

// initialMarginRate 按名义价值返回分级初始保证金率
func initialMarginRate(notional float64) float64 {
	if notional <= marginTierNotional {
		return baseMarginRate
	}
	return baseMarginRate + marginTierSlope*(notional-marginTierNotional)
}
