package data

import (
	"fmt"
	"sync"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
)

// History 维护单个交易对的有序 K 线缓冲区：
//   - 时间严格递增，拒绝重复时间戳
//   - 已完成的 K 线不可变，只有最后一根（当前周期正在形成的）会被实时价格更新
//   - FIFO 截断，最多保留 maxLen 根
//
// REST 拉取的历史通过 Replace 整体装载，WS 推送的标记价格通过 ApplyTicker
// 合并到正在形成的 K 线上。
type History struct {
	mu       sync.RWMutex
	symbol   string
	interval time.Duration
	maxLen   int
	bars     []model.PriceBar
}

func NewHistory(symbol string, interval time.Duration, maxLen int) *History {
	return &History{
		symbol:   symbol,
		interval: interval,
		maxLen:   maxLen,
		bars:     make([]model.PriceBar, 0, maxLen),
	}
}

// Replace 用一批 REST 拉取的 K 线整体替换缓冲区。
// 序列必须按时间升序且无重复时间戳，否则拒绝装载。
func (h *History) Replace(bars []model.PriceBar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar sequence not strictly ascending at index %d (%s vs %s)",
				i, bars[i-1].Timestamp, bars[i].Timestamp)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.bars = h.bars[:0]
	h.bars = append(h.bars, bars...)
	h.truncate()
	return nil
}

// Append 追加一根已完成的 K 线。时间戳不晚于最后一根时拒绝。
func (h *History) Append(bar model.PriceBar) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.bars); n > 0 && !bar.Timestamp.After(h.bars[n-1].Timestamp) {
		return fmt.Errorf("duplicate or out-of-order bar timestamp %s", bar.Timestamp)
	}
	h.bars = append(h.bars, bar)
	h.truncate()
	return nil
}

// ApplyTicker 将一条实时价格合并进缓冲区：
// 价格落在最后一根 K 线的周期内则更新其 Close/High/Low，
// 落在新周期则开启一根新 K 线（开盘价取上一根收盘价）。
func (h *History) ApplyTicker(t model.Ticker) {
	if t.Symbol != h.symbol {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	barStart := time.UnixMilli(t.Timestamp).UTC().Truncate(h.interval)

	n := len(h.bars)
	if n == 0 {
		h.bars = append(h.bars, model.PriceBar{
			Symbol:    h.symbol,
			Timestamp: barStart,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
		})
		return
	}

	last := &h.bars[n-1]
	if !barStart.After(last.Timestamp) {
		// 同一周期内：更新正在形成的 K 线
		last.Close = t.Price
		if t.Price > last.High {
			last.High = t.Price
		}
		if t.Price < last.Low {
			last.Low = t.Price
		}
		return
	}

	// 新周期：上一根定格，开启新 K 线
	h.bars = append(h.bars, model.PriceBar{
		Symbol:    h.symbol,
		Timestamp: barStart,
		Open:      last.Close,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
	})
	h.truncate()
}

// Snapshot 返回当前缓冲区的副本，调用方可安全持有
func (h *History) Snapshot() []model.PriceBar {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.PriceBar, len(h.bars))
	copy(out, h.bars)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bars)
}

func (h *History) truncate() {
	if h.maxLen > 0 && len(h.bars) > h.maxLen {
		h.bars = h.bars[len(h.bars)-h.maxLen:]
	}
}
