package strategy

import (
	"testing"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultSizerParams() SizerParams {
	return SizerParams{
		WinProbability:    0.6,
		RewardRiskRatio:   2,
		KellyFraction:     1,
		MaxMarginFraction: 0.75,
		StopMultiplier:    2,
		LotSize:           1,
	}
}

func TestSizerParams_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SizerParams)
	}{
		{"win probability above one", func(p *SizerParams) { p.WinProbability = 1.2 }},
		{"win probability negative", func(p *SizerParams) { p.WinProbability = -0.1 }},
		{"reward risk ratio zero", func(p *SizerParams) { p.RewardRiskRatio = 0 }},
		{"kelly fraction zero", func(p *SizerParams) { p.KellyFraction = 0 }},
		{"max margin fraction above one", func(p *SizerParams) { p.MaxMarginFraction = 1.5 }},
		{"stop multiplier zero", func(p *SizerParams) { p.StopMultiplier = 0 }},
		{"lot size zero", func(p *SizerParams) { p.LotSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := defaultSizerParams()
			tc.mutate(&params)
			err := params.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidRiskParameters)

			_, err = NewPositionSizer("BTCUSD", params, zap.NewNop().Sugar())
			assert.ErrorIs(t, err, model.ErrInvalidRiskParameters)
		})
	}

	assert.NoError(t, defaultSizerParams().Validate())
}

func TestKelly_Boundaries(t *testing.T) {
	// p=0.5, b=1：没有优势，f = 0.5 - 0.5/1 = 0
	params := defaultSizerParams()
	params.WinProbability = 0.5
	params.RewardRiskRatio = 1
	assert.InDelta(t, 0, params.Kelly(), 1e-12)

	// p=0.9, b=2：f = 0.9 - 0.1/2 = 0.85，夹到上限 0.75
	params = defaultSizerParams()
	params.WinProbability = 0.9
	assert.InDelta(t, 0.75, params.Kelly(), 1e-12)

	// p=0.6, b=2：f = 0.6 - 0.4/2 = 0.4
	params = defaultSizerParams()
	assert.InDelta(t, 0.4, params.Kelly(), 1e-12)

	// 半 Kelly：系数先乘，再夹
	params = defaultSizerParams()
	params.KellyFraction = 0.5
	assert.InDelta(t, 0.2, params.Kelly(), 1e-12)

	// p 过低时 f 为负，夹到 0
	params = defaultSizerParams()
	params.WinProbability = 0.1
	assert.InDelta(t, 0, params.Kelly(), 1e-12)
}

func TestSize_NoEdgeReturnsSizeBelowMinimum(t *testing.T) {
	params := defaultSizerParams()
	params.WinProbability = 0.5
	params.RewardRiskRatio = 1
	sizer, err := NewPositionSizer("BTCUSD", params, zap.NewNop().Sugar())
	require.NoError(t, err)

	acct := model.AccountState{Bankroll: 1000, Equity: 1000}
	snap := ta.Snapshot{ShortMA: 100, LongMA: 100, ATR: 2}

	_, err = sizer.Size(model.DirLong, acct, snap, 100, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSizeBelowMinimum)
}

func TestSize_LongIntent(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	acct := model.AccountState{Bankroll: 1000, Equity: 1000}
	snap := ta.Snapshot{ShortMA: 101, LongMA: 100, ATR: 2}
	now := time.Now()

	intent, err := sizer.Size(model.DirLong, acct, snap, 100, now)
	require.NoError(t, err)

	// f=0.4 → 预算 400；单张保证金 100*1*0.005=0.5 → 800 张
	assert.Equal(t, model.ActionOpen, intent.Action)
	assert.Equal(t, model.DirLong, intent.Direction)
	assert.InDelta(t, 800, intent.Size, 1e-9)
	assert.InDelta(t, 100, intent.Price, 1e-9)
	assert.InDelta(t, 96, intent.StopLossPrice, 1e-9)  // 100 - 2*ATR
	assert.InDelta(t, 108, intent.TakeProfitPrice, 1e-9) // 100 + b*止损距离
	assert.Equal(t, now, intent.Timestamp)

	// 实际保证金不超过预算
	margin := intent.Size * intent.Price * 1 * baseMarginRate
	assert.LessOrEqual(t, margin, 0.4*acct.Bankroll+1e-9)
}

func TestSize_ShortIntentMirrorsStops(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	acct := model.AccountState{Bankroll: 1000, Equity: 1000}
	snap := ta.Snapshot{ShortMA: 99, LongMA: 100, ATR: 2}

	intent, err := sizer.Size(model.DirShort, acct, snap, 100, time.Now())
	require.NoError(t, err)

	assert.Equal(t, model.DirShort, intent.Direction)
	assert.InDelta(t, 104, intent.StopLossPrice, 1e-9)
	assert.InDelta(t, 92, intent.TakeProfitPrice, 1e-9)
}

func TestSize_BudgetBuysNoContract(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	// 本金太小：预算 0.4 买不起一张（单张保证金 0.5）
	acct := model.AccountState{Bankroll: 1, Equity: 1}
	snap := ta.Snapshot{ATR: 2}

	_, err = sizer.Size(model.DirLong, acct, snap, 100, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSizeBelowMinimum)
}

func TestSize_NegativeStopRejected(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	// 止损距离 2*10 超过价格本身，多头止损为负
	acct := model.AccountState{Bankroll: 1000, Equity: 1000}
	snap := ta.Snapshot{ATR: 10}

	_, err = sizer.Size(model.DirLong, acct, snap, 10, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSizeBelowMinimum)
}

func TestSize_NonDirectionalSignalRejected(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = sizer.Size(model.DirFlat, model.AccountState{Bankroll: 1000}, ta.Snapshot{ATR: 2}, 100, time.Now())
	assert.Error(t, err)
}

func TestInitialMarginRate_Tiers(t *testing.T) {
	assert.InDelta(t, 0.005, initialMarginRate(50_000), 1e-12)
	assert.InDelta(t, 0.005, initialMarginRate(100_000), 1e-12)
	// 超出 10 万名义价值的部分按 2.5e-8/USD 线性加收
	assert.InDelta(t, 0.0075, initialMarginRate(200_000), 1e-12)
}

func TestSize_TieredMarginShrinksSize(t *testing.T) {
	sizer, err := NewPositionSizer("BTCUSD", defaultSizerParams(), zap.NewNop().Sugar())
	require.NoError(t, err)

	// 大本金下名义价值进入高费率档，张数必须收缩到保证金上限以内
	acct := model.AccountState{Bankroll: 1_000_000, Equity: 1_000_000}
	snap := ta.Snapshot{ATR: 2}

	intent, err := sizer.Size(model.DirLong, acct, snap, 100, time.Now())
	require.NoError(t, err)

	notional := intent.Size * intent.Price
	margin := notional * initialMarginRate(notional)
	assert.LessOrEqual(t, margin, 0.75*acct.Bankroll+1e-6)
	assert.GreaterOrEqual(t, intent.Size, 1.0)
}
