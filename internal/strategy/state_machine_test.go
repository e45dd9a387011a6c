package strategy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRiskManager(halt bool) *RiskManager {
	return NewRiskManager(2, 0.10, halt, zap.NewNop().Sugar())
}

// openTestPosition 把状态机驱动到 OPEN
func openTestPosition(t *testing.T, rm *RiskManager, dir model.Direction, entry, stop, tp float64) {
	t.Helper()
	intent := model.OrderIntent{
		Symbol:          "BTCUSD",
		Timestamp:       time.Now(),
		Action:          model.ActionOpen,
		Direction:       dir,
		Size:            100,
		Price:           entry,
		StopLossPrice:   stop,
		TakeProfitPrice: tp,
	}
	err := rm.RecordOpenFill(intent, model.OrderConfirmation{Filled: true, FillPrice: entry})
	require.NoError(t, err)
	require.Equal(t, StateOpen, rm.State())
}

func healthyAccount() model.AccountState {
	return model.AccountState{Bankroll: 1000, Equity: 1000, OpenPositionPnL: 0}
}

func TestRecordOpenFill_SinglePositionInvariant(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	// 第二个开仓确认必须被拒绝
	err := rm.RecordOpenFill(model.OrderIntent{Action: model.ActionOpen, Direction: model.DirLong},
		model.OrderConfirmation{Filled: true, FillPrice: 100})
	assert.Error(t, err)
	assert.Equal(t, StateOpen, rm.State())
}

func TestRecordOpenFill_RequiresFilledConfirmation(t *testing.T) {
	rm := newTestRiskManager(true)
	err := rm.RecordOpenFill(model.OrderIntent{Action: model.ActionOpen},
		model.OrderConfirmation{Filled: false})
	assert.Error(t, err)
	assert.Equal(t, StateFlat, rm.State())
	assert.Nil(t, rm.Position())
}

func TestRecordCloseFill_OnlyInClosing(t *testing.T) {
	rm := newTestRiskManager(true)
	assert.Error(t, rm.RecordCloseFill(model.OrderConfirmation{Filled: true}))

	openTestPosition(t, rm, model.DirLong, 100, 96, 108)
	assert.Error(t, rm.RecordCloseFill(model.OrderConfirmation{Filled: true}))
	assert.Equal(t, StateOpen, rm.State())
}

func TestEvaluate_TrailingStopTightens(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 200)

	// 价格上移：候选止损 105 - 2*2 = 101 高于现有止损 96
	intent := rm.Evaluate(105, 2, healthyAccount(), time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionAdjustStop, intent.Action)
	assert.InDelta(t, 101, intent.StopLossPrice, 1e-9)
	assert.InDelta(t, 101, rm.Position().StopLossPrice, 1e-9)
	assert.Equal(t, StateOpen, rm.State())

	// 价格回落：候选 102-4=98 低于 101，不放松
	intent = rm.Evaluate(102, 2, healthyAccount(), time.Now())
	assert.Nil(t, intent)
	assert.InDelta(t, 101, rm.Position().StopLossPrice, 1e-9)
}

func TestEvaluate_TrailingStopShortDirection(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirShort, 100, 104, 50)

	// 空头价格下移：候选 95 + 4 = 99 低于 104，收紧
	intent := rm.Evaluate(95, 2, healthyAccount(), time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionAdjustStop, intent.Action)
	assert.InDelta(t, 99, intent.StopLossPrice, 1e-9)

	// 反弹：候选 98+4=102 高于 99，不放松
	intent = rm.Evaluate(98, 2, healthyAccount(), time.Now())
	assert.Nil(t, intent)
	assert.InDelta(t, 99, rm.Position().StopLossPrice, 1e-9)
}

// 随机价格路径下多头止损必须单调不减（空头镜像单调不增）
func TestEvaluate_TrailingStopMonotonicProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		rm := newTestRiskManager(false)
		openTestPosition(t, rm, model.DirLong, 100, 90, 100000)

		price := 100.0
		lastStop := rm.Position().StopLossPrice
		for step := 0; step < 200; step++ {
			price += (rng.Float64() - 0.5) * 4
			if price < 1 {
				price = 1
			}
			rm.Evaluate(price, 2, healthyAccount(), time.Now())
			if rm.State() != StateOpen {
				break // 止损被穿越，路径结束
			}
			stop := rm.Position().StopLossPrice
			assert.GreaterOrEqual(t, stop, lastStop, "run %d step %d", run, step)
			lastStop = stop
		}
	}
}

func TestEvaluate_StopLossTriggersClose(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	intent := rm.Evaluate(95.5, 2, healthyAccount(), time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionClose, intent.Action)
	assert.Equal(t, "stop_loss", intent.Reason)
	assert.Equal(t, StateClosing, rm.State())
}

func TestEvaluate_StopBoundaryIsInclusive(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	// 恰好触及止损价也要平仓
	intent := rm.Evaluate(96, 2, healthyAccount(), time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionClose, intent.Action)
	assert.Equal(t, "stop_loss", intent.Reason)
}

func TestEvaluate_TakeProfitTriggersClose(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	intent := rm.Evaluate(109, 2, healthyAccount(), time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionClose, intent.Action)
	assert.Equal(t, "take_profit", intent.Reason)
}

func TestEvaluate_PortfolioStopClosedInterval(t *testing.T) {
	// 止损设在候选位上（100-2*2=96），排除移动止损干扰
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 100000)

	// 浮亏 -99.99 / 1000 = -9.999%：未达阈值，不动作
	acct := model.AccountState{Bankroll: 1000, Equity: 900.01, OpenPositionPnL: -99.99}
	assert.Nil(t, rm.Evaluate(100, 2, acct, time.Now()))
	assert.Equal(t, StateOpen, rm.State())

	// 恰好 -10%（闭区间）必须触发
	acct = model.AccountState{Bankroll: 1000, Equity: 900, OpenPositionPnL: -100}
	intent := rm.Evaluate(100, 2, acct, time.Now())
	require.NotNil(t, intent)
	assert.Equal(t, model.ActionClose, intent.Action)
	assert.Equal(t, "portfolio_stop", intent.Reason)
	assert.Equal(t, StateClosing, rm.State())
}

func TestEvaluate_ClosingIsIdempotent(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	first := rm.Evaluate(95, 2, healthyAccount(), time.Now())
	require.NotNil(t, first)
	require.Equal(t, StateClosing, rm.State())

	// 确认未到之前，后续周期原样重发同一条意图（价格变化也不影响）
	for _, price := range []float64{94, 99, 80} {
		again := rm.Evaluate(price, 2, healthyAccount(), time.Now())
		require.NotNil(t, again)
		assert.Equal(t, first.Action, again.Action)
		assert.Equal(t, first.Size, again.Size)
		assert.Equal(t, first.Price, again.Price)
		assert.Equal(t, first.Reason, again.Reason)
	}

	require.NoError(t, rm.RecordCloseFill(model.OrderConfirmation{Filled: true, FillPrice: 94}))
	assert.Equal(t, StateFlat, rm.State())
	assert.Nil(t, rm.Position())
	assert.Nil(t, rm.Evaluate(94, 2, healthyAccount(), time.Now()))
}

func TestPortfolioStop_HaltsAfterCloseFill(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 100000)

	acct := model.AccountState{Bankroll: 1000, Equity: 880, OpenPositionPnL: -120}
	intent := rm.Evaluate(100, 2, acct, time.Now())
	require.NotNil(t, intent)
	assert.False(t, rm.Halted()) // 平仓确认前不停机

	require.NoError(t, rm.RecordCloseFill(model.OrderConfirmation{Filled: true, FillPrice: 88}))
	assert.True(t, rm.Halted())
	assert.Equal(t, StateFlat, rm.State())
}

func TestPortfolioStop_NoHaltWhenDisabled(t *testing.T) {
	rm := newTestRiskManager(false)
	openTestPosition(t, rm, model.DirLong, 100, 96, 100000)

	acct := model.AccountState{Bankroll: 1000, Equity: 880, OpenPositionPnL: -120}
	require.NotNil(t, rm.Evaluate(100, 2, acct, time.Now()))
	require.NoError(t, rm.RecordCloseFill(model.OrderConfirmation{Filled: true, FillPrice: 88}))
	assert.False(t, rm.Halted())
}

func TestPosition_ReturnsCopy(t *testing.T) {
	rm := newTestRiskManager(true)
	openTestPosition(t, rm, model.DirLong, 100, 96, 108)

	p := rm.Position()
	p.StopLossPrice = 1 // 外部修改不能影响内部状态
	assert.InDelta(t, 96, rm.Position().StopLossPrice, 1e-9)
}
