package model

import (
	"fmt"
	"time"
)

// ActionType 定义了核心引擎向执行层发出的指令类型
type ActionType string

const (
	ActionNone       ActionType = "NONE"        // 无操作
	ActionOpen       ActionType = "OPEN"        // 开仓
	ActionAdjustStop ActionType = "ADJUST_STOP" // 移动止损（只收紧，不放松）
	ActionClose      ActionType = "CLOSE"       // 平仓 (平掉当前仓位)
)

// Direction 定义了持仓或期望开仓的方向
type Direction string

const (
	DirLong  Direction = "long"  // 多
	DirShort Direction = "short" // 空
	DirFlat  Direction = "flat"  // 空仓 / 无信号
)

func (d Direction) String() string {
	return string(d)
}

// OrderIntent 是核心引擎每个周期最多输出一条的交易意图，
// 由执行层转换为具体的交易所订单。核心永远不直接操作交易所状态。
type OrderIntent struct {
	Symbol          string
	Timestamp       time.Time  // 意图生成时间（即周期时间戳）
	Action          ActionType // OPEN / ADJUST_STOP / CLOSE
	Direction       Direction  // 期望方向
	Size            float64    // 合约张数（整数值，float 仅为方便计算）
	Price           float64    // 期望的入场/平仓价格（取最新收盘价）
	StopLossPrice   float64    // 止损价格
	TakeProfitPrice float64    // 止盈价格（仅开仓时有效）
	Reason          string     // 意图生成的文字描述，用于日志排查
}

func (s OrderIntent) String() string {
	return fmt.Sprintf("INTENT [%s | %s] @ %.2f | Size: %.0f | SL: %.2f | TP: %.2f | Reason: %s",
		s.Action, s.Direction, s.Price, s.Size, s.StopLossPrice, s.TakeProfitPrice, s.Reason)
}

// OrderConfirmation 是执行层对一条意图的回执
type OrderConfirmation struct {
	Filled    bool    // 订单是否已成交（false 表示挂单中，下个周期继续轮询）
	FillPrice float64 // 成交价格
}

// Position 定义了当前持仓信息，由风控状态机独占持有。
// 只有移动止损会修改它，平仓确认后销毁。
type Position struct {
	Symbol          string
	Direction       Direction
	Size            float64
	EntryPrice      float64
	StopLossPrice   float64 // 多头单调不减，空头单调不增
	TakeProfitPrice float64
	OpenedAt        time.Time
}

// ExitTrigger 判断当前价格是否逆着持仓方向穿越了止损价，或触及止盈价。
// 返回平仓原因（"stop_loss" / "take_profit"），未触发返回空串。
// 穿越判定是闭区间：价格恰好等于止损价也触发。
func (p *Position) ExitTrigger(price float64) string {
	switch p.Direction {
	case DirLong:
		if price <= p.StopLossPrice {
			return "stop_loss"
		}
		if p.TakeProfitPrice > 0 && price >= p.TakeProfitPrice {
			return "take_profit"
		}
	case DirShort:
		if price >= p.StopLossPrice {
			return "stop_loss"
		}
		if p.TakeProfitPrice > 0 && price <= p.TakeProfitPrice {
			return "take_profit"
		}
	}
	return ""
}

// TradeRecord 记录一次完整的开仓和平仓交易（模拟执行器维护）
type TradeRecord struct {
	EntryTime     time.Time
	ExitTime      time.Time
	Symbol        string
	PosSide       Direction
	EntryPrice    float64
	ExitPrice     float64
	Size          float64
	RealizedPnL   float64 // 已实现盈亏
	Fee           float64 // 总手续费 (开仓 + 平仓)
	TriggerReason string  // 平仓原因: "signal", "stop_loss", "take_profit", "portfolio_stop"
}
