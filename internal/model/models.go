package model

import "time"

// Ticker 代表最小粒度的市场数据（来自 WS 的标记价格快照）
type Ticker struct {
	Symbol    string  // 所属交易对，例如 "BTCUSD"
	Timestamp int64   // 毫秒时间戳
	Price     float64 // 最新标记价格
}

// PriceBar 代表一根已完成的 K 线数据，记录后不可变
type PriceBar struct {
	Symbol    string
	Timestamp time.Time // K 线起始时间，序列内严格递增、不允许重复
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// AccountState 是每个决策周期从交易所读取的账户快照。
// 核心引擎只读，不会回写；周期之间不保证连续。
type AccountState struct {
	Bankroll        float64 // 策略可支配本金（配置给定，不随权益波动）
	Equity          float64 // 账户净值 = 余额 + 浮动盈亏
	OpenPositionPnL float64 // 当前持仓的未实现盈亏（空仓时为 0）
}
