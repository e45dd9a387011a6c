package strategy

import (
	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"go.uber.org/zap"
)

// SignalGenerator 负责从相邻两个指标快照生成方向信号。
// 策略口径：趋势内的均值回归 ——
//   - 多头：短均线上穿长均线（金叉），且价格回调到长均线下方的带宽内
//   - 空头：镜像条件（死叉 + 价格反弹到长均线上方的带宽内）
//
// 无副作用，纯函数。
type SignalGenerator struct {
	bandPct float64 // 回调带宽，例如 0.05 表示允许偏离长均线 5%
	logger  *zap.SugaredLogger
}

// NewSignalGenerator 初始化信号生成器
func NewSignalGenerator(bandPct float64, logger *zap.SugaredLogger) *SignalGenerator {
	return &SignalGenerator{
		bandPct: bandPct,
		logger:  logger,
	}
}

// Generate 根据前后两个快照和当前收盘价输出方向信号。
// 返回 DirFlat 表示无操作。
func (sg *SignalGenerator) Generate(prev, curr ta.Snapshot, closePrice float64) model.Direction {
	crossUp := prev.ShortMA <= prev.LongMA && curr.ShortMA > curr.LongMA
	crossDown := prev.ShortMA >= prev.LongMA && curr.ShortMA < curr.LongMA

	// 退化数据下两个交叉条件同时成立时，绝不出信号
	if crossUp == crossDown {
		return model.DirFlat
	}

	if crossUp {
		// 超卖于上升趋势：价格在长均线下方、但没有跌出带宽
		inBand := closePrice < curr.LongMA && closePrice >= curr.LongMA*(1-sg.bandPct)
		if inBand {
			sg.logger.Infow("long signal: golden cross with pullback",
				"shortMA", curr.ShortMA, "longMA", curr.LongMA, "close", closePrice)
			return model.DirLong
		}
		sg.logger.Debugw("golden cross without pullback, no entry",
			"longMA", curr.LongMA, "close", closePrice, "bandPct", sg.bandPct)
		return model.DirFlat
	}

	// crossDown
	inBand := closePrice > curr.LongMA && closePrice <= curr.LongMA*(1+sg.bandPct)
	if inBand {
		sg.logger.Infow("short signal: death cross with rebound",
			"shortMA", curr.ShortMA, "longMA", curr.LongMA, "close", closePrice)
		return model.DirShort
	}
	sg.logger.Debugw("death cross without rebound, no entry",
		"longMA", curr.LongMA, "close", closePrice, "bandPct", sg.bandPct)
	return model.DirFlat
}
