package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitTrigger_Long(t *testing.T) {
	p := &Position{Direction: DirLong, EntryPrice: 100, StopLossPrice: 96, TakeProfitPrice: 108}

	assert.Equal(t, "", p.ExitTrigger(100))
	assert.Equal(t, "", p.ExitTrigger(96.01))
	assert.Equal(t, "stop_loss", p.ExitTrigger(96)) // 闭区间
	assert.Equal(t, "stop_loss", p.ExitTrigger(90))
	assert.Equal(t, "take_profit", p.ExitTrigger(108))
	assert.Equal(t, "take_profit", p.ExitTrigger(120))
}

func TestExitTrigger_Short(t *testing.T) {
	p := &Position{Direction: DirShort, EntryPrice: 100, StopLossPrice: 104, TakeProfitPrice: 92}

	assert.Equal(t, "", p.ExitTrigger(100))
	assert.Equal(t, "stop_loss", p.ExitTrigger(104))
	assert.Equal(t, "stop_loss", p.ExitTrigger(110))
	assert.Equal(t, "take_profit", p.ExitTrigger(92))
	assert.Equal(t, "take_profit", p.ExitTrigger(80))
}

func TestExitTrigger_NoTakeProfit(t *testing.T) {
	// 止盈价为 0 表示未设置，任何价格都不触发止盈
	p := &Position{Direction: DirLong, StopLossPrice: 96}
	assert.Equal(t, "", p.ExitTrigger(100000))

	s := &Position{Direction: DirShort, StopLossPrice: 104}
	assert.Equal(t, "", s.ExitTrigger(50))
}

func TestOrderIntent_String(t *testing.T) {
	intent := OrderIntent{
		Action: ActionOpen, Direction: DirLong,
		Price: 97.69, Size: 818, StopLossPrice: 93.50, TakeProfitPrice: 106.06,
		Reason: "kelly f=0.4000",
	}
	s := intent.String()
	assert.Contains(t, s, "OPEN")
	assert.Contains(t, s, "long")
	assert.Contains(t, s, "97.69")
	assert.Contains(t, s, "818")
}
