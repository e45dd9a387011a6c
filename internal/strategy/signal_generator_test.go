package strategy

import (
	"testing"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestSignalGenerator() *SignalGenerator {
	return NewSignalGenerator(0.05, zap.NewNop().Sugar())
}

func TestGenerate_GoldenCrossWithPullback(t *testing.T) {
	sg := newTestSignalGenerator()

	prev := ta.Snapshot{ShortMA: 99.5, LongMA: 100}
	curr := ta.Snapshot{ShortMA: 100.5, LongMA: 100}

	// 收盘价在长均线下方 5% 带宽内
	assert.Equal(t, model.DirLong, sg.Generate(prev, curr, 97))
	// 带宽下沿（闭区间）
	assert.Equal(t, model.DirLong, sg.Generate(prev, curr, 95))
}

func TestGenerate_GoldenCrossWithoutPullback(t *testing.T) {
	sg := newTestSignalGenerator()

	prev := ta.Snapshot{ShortMA: 99.5, LongMA: 100}
	curr := ta.Snapshot{ShortMA: 100.5, LongMA: 100}

	// 价格已在长均线上方：没有回调，不进场
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 101))
	// 跌出带宽：回调过深，不进场
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 94.9))
	// 恰好等于长均线不算回调
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 100))
}

func TestGenerate_DeathCrossWithRebound(t *testing.T) {
	sg := newTestSignalGenerator()

	prev := ta.Snapshot{ShortMA: 100.5, LongMA: 100}
	curr := ta.Snapshot{ShortMA: 99.5, LongMA: 100}

	assert.Equal(t, model.DirShort, sg.Generate(prev, curr, 103))
	assert.Equal(t, model.DirShort, sg.Generate(prev, curr, 105)) // 带宽上沿
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 105.1))
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 98))
}

func TestGenerate_NoCross(t *testing.T) {
	sg := newTestSignalGenerator()

	// 短均线一直在长均线上方：没有新交叉
	prev := ta.Snapshot{ShortMA: 101, LongMA: 100}
	curr := ta.Snapshot{ShortMA: 102, LongMA: 100}
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 97))

	// 一直在下方
	prev = ta.Snapshot{ShortMA: 99, LongMA: 100}
	curr = ta.Snapshot{ShortMA: 98, LongMA: 100}
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 103))
}

func TestGenerate_DegenerateEquality(t *testing.T) {
	sg := newTestSignalGenerator()

	// 两条均线完全重合：任何价格都不出信号
	prev := ta.Snapshot{ShortMA: 100, LongMA: 100}
	curr := ta.Snapshot{ShortMA: 100, LongMA: 100}
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 97))
	assert.Equal(t, model.DirFlat, sg.Generate(prev, curr, 103))
}
