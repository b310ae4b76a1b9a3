// Package usage tracks token consumption of language-model calls.
package usage

import "sync"

// TokenCount holds input and output token counts.
type TokenCount struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Plus returns the element-wise sum of tc and o.
func (tc TokenCount) Plus(o TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + o.InputTokens,
		OutputTokens: tc.OutputTokens + o.OutputTokens,
	}
}

// Tracker accumulates usage across calls. It keeps running totals rather
// than individual entries, so a process-lifetime tracker stays small.
// It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	total TokenCount
	last  TokenCount
	calls int
}

// Add records one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = t.total.Plus(tc)
	t.last = tc
	t.calls++
}

// Last returns the most recent call's usage. The bool is false when nothing
// was recorded.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the aggregate usage.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

// Reset clears the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total, t.last, t.calls = TokenCount{}, TokenCount{}, 0
}
