package execution

import (
	"context"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
)

// Executor 是交易所协作方的通用接口。核心引擎只通过它接触外部世界，
// 签名、重试、限速全部留在实现内部。
type Executor interface {
	// FetchPriceHistory 拉取按时间升序排列的 K 线序列。
	// 数据不可用时返回 model.ErrDataUnavailable，调用方跳过本周期。
	FetchPriceHistory(ctx context.Context, symbol, interval string, minBars int) ([]model.PriceBar, error)

	// FetchAccountState 读取账户快照（本金、净值、持仓浮盈亏）
	FetchAccountState(ctx context.Context) (model.AccountState, error)

	// SubmitOrder 将一条交易意图转换为交易所订单并返回回执。
	// 拒单时返回 model.ErrOrderRejected。
	SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderConfirmation, error)
}
