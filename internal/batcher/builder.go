package batcher

import "time"

// Builder accumulates pending items for the next flight and tracks both
// capacity bounds. It is a plain data structure: the Coordinator loop is
// its only user, so there is no locking or timer logic here.
type Builder struct {
	maxBatchSize   int
	maxTotalInputs int

	items       []*Item
	totalInputs int
	openedAt    time.Time
}

// NewBuilder creates an empty Builder with the given capacity bounds.
func NewBuilder(maxBatchSize, maxTotalInputs int) *Builder {
	return &Builder{
		maxBatchSize:   maxBatchSize,
		maxTotalInputs: maxTotalInputs,
	}
}

// CanAdmit reports whether adding item keeps both bounds intact.
func (b *Builder) CanAdmit(item *Item) bool {
	return len(b.items)+1 <= b.maxBatchSize &&
		b.totalInputs+len(item.Inputs) <= b.maxTotalInputs
}

// Admit appends item and updates the running totals. Callers must check
// CanAdmit first.
func (b *Builder) Admit(item *Item) {
	if b.Empty() {
		b.openedAt = item.ReceivedAt
	}
	b.items = append(b.items, item)
	b.totalInputs += len(item.Inputs)
}

// Empty reports whether the builder holds no pending items.
func (b *Builder) Empty() bool {
	return len(b.items) == 0
}

// Len returns the number of pending items.
func (b *Builder) Len() int {
	return len(b.items)
}

// TotalInputs returns the running sum of input strings across items.
func (b *Builder) TotalInputs() int {
	return b.totalInputs
}

// Full reports that no further item, even a single-input one, can join.
func (b *Builder) Full() bool {
	return len(b.items) >= b.maxBatchSize || b.totalInputs >= b.maxTotalInputs
}

// Age returns how long the batch has been open. Zero when empty. The open
// time is anchored to the first admission and never reset, which bounds
// worst-case latency regardless of traffic.
func (b *Builder) Age(now time.Time) time.Duration {
	if b.Empty() {
		return 0
	}
	return now.Sub(b.openedAt)
}

// Drain returns the accumulated items and resets the builder.
func (b *Builder) Drain() []*Item {
	items := b.items
	b.items = nil
	b.totalInputs = 0
	b.openedAt = time.Time{}
	return items
}
