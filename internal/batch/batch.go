// Package batch runs chunked workloads in bounded concurrent waves with a
// cooldown between waves, protecting rate-limited external callees.
package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options controls chunking, wave concurrency and inter-wave cooldown.
type Options struct {
	// BatchSize is the number of items per chunk. Must be positive.
	BatchSize int

	// Concurrency is the maximum number of chunks in flight at once.
	// Values below 1 are treated as 1.
	Concurrency int

	// Cooldown is the pause inserted after each wave except the last.
	Cooldown time.Duration
}

// Handler processes one chunk and returns its results. Results are
// order-preserved within the chunk only.
type Handler[T, R any] func(ctx context.Context, chunk []T) ([]R, error)

// Process splits items into consecutive chunks of opts.BatchSize, runs at
// most opts.Concurrency chunks concurrently per wave, and sleeps
// opts.Cooldown between waves. Results of wave N appear (in chunk-submission
// order) before any result of wave N+1. A failing handler fails the whole
// operation; retry policy belongs to the caller.
func Process[T, R any](ctx context.Context, items []T, opts Options, handler Handler[T, R]) ([]R, error) {
	if opts.BatchSize <= 0 {
		return nil, eris.Errorf("batch: invalid batch size %d", opts.BatchSize)
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if len(items) == 0 {
		return nil, nil
	}

	chunks := Chunk(items, opts.BatchSize)
	waves := (len(chunks) + concurrency - 1) / concurrency

	zap.L().Debug("batch: processing",
		zap.Int("items", len(items)),
		zap.Int("chunks", len(chunks)),
		zap.Int("waves", waves),
		zap.Int("concurrency", concurrency),
	)

	var results []R
	for wave := 0; wave < waves; wave++ {
		start := wave * concurrency
		end := start + concurrency
		if end > len(chunks) {
			end = len(chunks)
		}
		waveChunks := chunks[start:end]

		// Collect per-chunk results indexed by submission order so the
		// combined output is deterministic regardless of completion order.
		waveResults := make([][]R, len(waveChunks))

		// Chunks in a wave are independent: a failing chunk fails the
		// operation after the wave drains, but never cancels its siblings.
		var g errgroup.Group
		for i, chunk := range waveChunks {
			g.Go(func() error {
				out, err := handler(ctx, chunk)
				if err != nil {
					return eris.Wrapf(err, "batch: chunk %d", start+i)
				}
				waveResults[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, r := range waveResults {
			results = append(results, r...)
		}

		if wave < waves-1 && opts.Cooldown > 0 {
			timer := time.NewTimer(opts.Cooldown)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, eris.Wrap(ctx.Err(), "batch: cooldown interrupted")
			case <-timer.C:
			}
		}
	}

	return results, nil
}

// Chunk splits items into consecutive slices of at most size elements. The
// last chunk may be smaller. The returned slices alias the input.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
