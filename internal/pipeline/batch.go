package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency bounds the number of pipeline runs active at once
// for a single batch request when the caller does not configure one.
const DefaultBatchConcurrency = 10

// MinBatchSize and MaxBatchSize bound the number of items a batch request
// may contain.
const (
	MinBatchSize = 1
	MaxBatchSize = 200
)

// ItemStatus is the terminal state of one batch item.
type ItemStatus string

const (
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
)

// BatchItemResult is one entry of a batch response, in input order.
type BatchItemResult struct {
	RequestIndex int        `json:"request_index"`
	Status       ItemStatus `json:"status"`
	Response     *Response  `json:"response,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// BatchRequest is 1-200 independent Requests dispatched under a bounded
// semaphore, with an optional caller-supplied correlation id.
type BatchRequest struct {
	BatchID  string    `json:"batch_id,omitempty"`
	Requests []Request `json:"requests"`
}

// BatchResponse aggregates per-item results plus summary counts.
type BatchResponse struct {
	BatchID               string            `json:"batch_id,omitempty"`
	Results               []BatchItemResult `json:"results"`
	CompletedCount        int               `json:"completed_count"`
	FailedCount           int               `json:"failed_count"`
	TotalProcessingTimeMs int64             `json:"total_processing_time_ms"`
}

// BatchOrchestrator fans a BatchRequest's items out across a Processor
// under a bounded semaphore. One item's failure never aborts the others.
type BatchOrchestrator struct {
	Processor   *Processor
	Concurrency int
}

// NewBatchOrchestrator builds an orchestrator; concurrency <= 0 falls back
// to DefaultBatchConcurrency.
func NewBatchOrchestrator(p *Processor, concurrency int) *BatchOrchestrator {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &BatchOrchestrator{Processor: p, Concurrency: concurrency}
}

// Run processes every item in req independently, preserving input order in
// the returned results regardless of completion order. If ctx is canceled
// or its deadline elapses, items not yet started are marked failed with a
// cancellation error; items already in flight are allowed to finish or
// time out on their own.
func (b *BatchOrchestrator) Run(ctx context.Context, req BatchRequest) BatchResponse {
	start := time.Now()
	n := len(req.Requests)
	results := make([]BatchItemResult, n)

	sem := semaphore.NewWeighted(int64(b.Concurrency))
	var wg sync.WaitGroup

	for i, item := range req.Requests {
		i, item := i, item

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = BatchItemResult{RequestIndex: i, Status: ItemFailed, Error: "batch canceled before item started"}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			resp, err := b.Processor.Process(ctx, item)
			if err != nil {
				results[i] = BatchItemResult{RequestIndex: i, Status: ItemFailed, Error: err.Error()}
				return
			}
			results[i] = BatchItemResult{RequestIndex: i, Status: ItemCompleted, Response: resp}
		}()
	}

	wg.Wait()

	var completed, failed int
	for _, r := range results {
		if r.Status == ItemCompleted {
			completed++
		} else {
			failed++
		}
	}

	return BatchResponse{
		BatchID:               req.BatchID,
		Results:                results,
		CompletedCount:        completed,
		FailedCount:           failed,
		TotalProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}
