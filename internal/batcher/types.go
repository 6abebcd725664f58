package batcher

import (
	"time"

	"embatch/internal/embedding"
)

// Item is one caller's submission riding in a pending batch.
type Item struct {
	Inputs     []string
	ReceivedAt time.Time

	resultCh chan Result
}

// Result is what a caller gets back: its slice of the flight's embeddings,
// or the error that failed the flight (or the submission itself).
type Result struct {
	Embeddings [][]float32
	BatchInfo  *embedding.BatchInfo
	Err        error
}

// deliver hands the result to the waiting caller. The channel is buffered
// with capacity 1 and only the first write wins, so a flight result
// arriving after a shutdown fan-out is dropped, and a result for an
// abandoned caller is simply discarded.
func (it *Item) deliver(r Result) {
	select {
	case it.resultCh <- r:
	default:
	}
}
