package model

import "errors"

// 核心错误分类。数据类错误只作废当前周期，状态保持不变；
// ErrInvalidRiskParameters 属于配置缺陷，启动校验时直接致命退出。
var (
	// 历史数据长度不足以计算指标，本周期跳过
	ErrInsufficientData = errors.New("insufficient price history")

	// 风控参数非法 (rewardRiskRatio <= 0 或 winProbability 越界)
	ErrInvalidRiskParameters = errors.New("invalid risk parameters")

	// Kelly 仓位取整后为零，本次交易跳过
	ErrSizeBelowMinimum = errors.New("position size below minimum")

	// 行情或账户数据本周期不可用
	ErrDataUnavailable = errors.New("market or account data unavailable")

	// 交易所拒单。开仓被拒回到空仓；平仓被拒下周期重试
	ErrOrderRejected = errors.New("order rejected by exchange")
)
