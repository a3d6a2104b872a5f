package livetranslate

import (
	"sync"

	"go.aimuz.me/voicebridge/internal/types"
)

// DefaultHistorySize is the number of recent utterances kept.
const DefaultHistorySize = 20

// History keeps a rolling buffer of recently published utterances of one
// session generation.
type History struct {
	mu     sync.Mutex
	max    int
	gen    uint64
	recent []types.Utterance
	count  int
}

// NewHistory creates a history holding at most max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max, recent: make([]types.Utterance, 0, max)}
}

// Add appends u, dropping the oldest entry when full. Utterances from a
// generation other than the current one are ignored.
func (h *History) Add(gen uint64, u types.Utterance) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gen != h.gen {
		return false
	}
	h.recent = append(h.recent, u)
	if len(h.recent) > h.max {
		h.recent = h.recent[1:]
	}
	h.count++
	return true
}

// Recent returns the kept utterances, oldest first.
func (h *History) Recent() []types.Utterance {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.Utterance, len(h.recent))
	copy(out, h.recent)
	return out
}

// Count returns the number of utterances added since the last reset.
func (h *History) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Reset clears all state and binds the history to gen.
func (h *History) Reset(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen = gen
	h.recent = h.recent[:0]
	h.count = 0
}
