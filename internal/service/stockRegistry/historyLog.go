package stockRegistry

import (
	"time"

	"github.com/KotFed0t/stock_market_sim/internal/model"
)

const HistoryRetention = 30 * 24 * time.Hour

// HistoryLog keeps price points of one stock ordered oldest first.
// It is not safe for concurrent use; the owning registry entry guards it.
type HistoryLog struct {
	entries []model.PriceHistoryEntry
}

func NewHistoryLog() *HistoryLog {
	return &HistoryLog{}
}

// Append adds e and drops everything older than the retention window relative to now.
func (h *HistoryLog) Append(e model.PriceHistoryEntry, now time.Time) {
	h.entries = append(h.entries, e)
	h.Prune(now.Add(-HistoryRetention))
}

// Since returns entries strictly newer than cutoff, most recent first.
func (h *HistoryLog) Since(cutoff time.Time) []model.PriceHistoryEntry {
	res := make([]model.PriceHistoryEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Timestamp.After(cutoff) {
			res = append(res, h.entries[i])
		}
	}
	return res
}

func (h *HistoryLog) Prune(cutoff time.Time) {
	keep := 0
	for _, e := range h.entries {
		if !e.Timestamp.Before(cutoff) {
			h.entries[keep] = e
			keep++
		}
	}
	clear(h.entries[keep:])
	h.entries = h.entries[:keep]
}

func (h *HistoryLog) Len() int {
	return len(h.entries)
}
