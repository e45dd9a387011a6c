package ta

import (
	"fmt"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

// Snapshot 存储某个 K 线位置上计算出的全部指标值。
// 每个周期重新派生，从不原地修改。
type Snapshot struct {
	ShortMA float64 // 短周期均线 (默认 MA50)
	LongMA  float64 // 长周期均线 (默认 MA200)
	ATR     float64 // 平均真实波动范围 (默认 14)
}

// Calculator 负责从有序的 K 线序列计算均线和波动率指标。
// 纯函数式：不持有历史数据，每次调用只依赖传入的序列。
type Calculator struct {
	ShortPeriod int
	LongPeriod  int
	ATRPeriod   int
	logger      *zap.SugaredLogger
}

// NewCalculator 初始化技术指标计算器
func NewCalculator(shortPeriod, longPeriod, atrPeriod int, logger *zap.SugaredLogger) *Calculator {
	return &Calculator{
		ShortPeriod: shortPeriod,
		LongPeriod:  longPeriod,
		ATRPeriod:   atrPeriod,
		logger:      logger,
	}
}

// MinHistory 返回计算一个 Snapshot 所需的最小 K 线数量。
// ATR 的真实波幅需要前一根收盘价，所以要多一根。
func (c *Calculator) MinHistory() int {
	n := c.LongPeriod
	if c.ATRPeriod > n {
		n = c.ATRPeriod
	}
	return n + 1
}

// Compute 计算序列最后一根 K 线处的指标快照。
// 序列长度不足时返回 model.ErrInsufficientData，调用方应跳过本周期。
func (c *Calculator) Compute(bars []model.PriceBar) (Snapshot, error) {
	if len(bars) < c.MinHistory() {
		return Snapshot{}, fmt.Errorf("%w: have %d bars, need %d",
			model.ErrInsufficientData, len(bars), c.MinHistory())
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	last := len(bars) - 1

	// --- 均线 (简单算术平均) ---
	shortMA := talib.Sma(closes, c.ShortPeriod)
	longMA := talib.Sma(closes, c.LongPeriod)

	// --- ATR: 真实波幅的滚动均值 ---
	// 注意这里不用 talib.Atr (Wilder 平滑)，策略口径是 TR 的简单均值
	atr := talib.Sma(trueRange(highs, lows, closes), c.ATRPeriod)

	snap := Snapshot{
		ShortMA: shortMA[last],
		LongMA:  longMA[last],
		ATR:     atr[last],
	}

	if c.logger != nil {
		c.logger.Debugw("indicators computed",
			"bars", len(bars),
			"shortMA", snap.ShortMA,
			"longMA", snap.LongMA,
			"atr", snap.ATR)
	}
	return snap, nil
}

// ComputePrev 计算倒数第二根 K 线处的指标快照，供交叉检测使用。
func (c *Calculator) ComputePrev(bars []model.PriceBar) (Snapshot, error) {
	if len(bars) < c.MinHistory()+1 {
		return Snapshot{}, fmt.Errorf("%w: have %d bars, need %d for previous snapshot",
			model.ErrInsufficientData, len(bars), c.MinHistory()+1)
	}
	return c.Compute(bars[:len(bars)-1])
}

// trueRange 计算逐根真实波幅:
// TR(i) = max(high-low, |high-prevClose|, |low-prevClose|)，第 0 根取 high-low。
func trueRange(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := range closes {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := abs(highs[i] - closes[i-1])
		lc := abs(lows[i] - closes[i-1])
		tr[i] = max3(hl, hc, lc)
	}
	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
