package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
)

// MutationKind selects between a put and a delete
type MutationKind int

const (
	MutationPut MutationKind = iota
	MutationDelete
)

func (k MutationKind) String() string {
	if k == MutationDelete {
		return "delete"
	}
	return "put"
}

// Mutation is one write in a batch
type Mutation struct {
	Kind      MutationKind
	Key       keyexpr.KeyExpr
	Value     Value // ignored for deletes
	Timestamp hlc.Timestamp
}

// Result represents outcome of a storage operation
type Result struct {
	Key      keyexpr.KeyExpr
	Kind     MutationKind
	Outcome  InsertionResult
	Success  bool
	Error    error
	Duration time.Duration
}

// BatchWriter applies batches of mutations to a storage. Mutations on the
// same key run one after another in timestamp order; distinct keys run in
// parallel.
type BatchWriter struct {
	logger      zerolog.Logger
	concurrency int
}

// NewBatchWriter creates a batch writer running at most concurrency keys at once
func NewBatchWriter(logger zerolog.Logger, concurrency int) *BatchWriter {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &BatchWriter{logger: logger, concurrency: concurrency}
}

// Apply runs every mutation and returns one result per mutation, in input order
func (w *BatchWriter) Apply(ctx context.Context, st Storage, mutations []Mutation) []Result {
	results := make([]Result, len(mutations))

	// Group mutation indexes by key, preserving first-seen key order
	groups := make(map[keyexpr.KeyExpr][]int)
	var order []keyexpr.KeyExpr
	for i, m := range mutations {
		if _, ok := groups[m.Key]; !ok {
			order = append(order, m.Key)
		}
		groups[m.Key] = append(groups[m.Key], i)
	}

	sem := semaphore.NewWeighted(int64(w.concurrency))
	var wg sync.WaitGroup

	for _, key := range order {
		idxs := groups[key]
		sort.SliceStable(idxs, func(a, b int) bool {
			return mutations[idxs[a]].Timestamp.Before(mutations[idxs[b]].Timestamp)
		})

		if err := sem.Acquire(ctx, 1); err != nil {
			for _, i := range idxs {
				results[i] = Result{Key: key, Kind: mutations[i].Kind, Error: err}
			}
			continue
		}

		wg.Add(1)
		go func(idxs []int) {
			defer wg.Done()
			defer sem.Release(1)

			for _, i := range idxs {
				results[i] = w.apply(ctx, st, mutations[i])
			}
		}(idxs)
	}

	wg.Wait()

	return results
}

func (w *BatchWriter) apply(ctx context.Context, st Storage, m Mutation) Result {
	start := time.Now()

	w.logger.Debug().
		Str("storage", st.Name()).
		Str("key", m.Key.String()).
		Str("op", m.Kind.String()).
		Msg("applying mutation")

	var (
		outcome InsertionResult
		err     error
	)
	if err = ctx.Err(); err == nil {
		switch m.Kind {
		case MutationDelete:
			outcome, err = st.Delete(ctx, m.Key, m.Timestamp)
		default:
			outcome, err = st.Put(ctx, m.Key, m.Value, m.Timestamp)
		}
	}
	duration := time.Since(start)

	if err != nil {
		w.logger.Error().
			Err(err).
			Str("storage", st.Name()).
			Str("key", m.Key.String()).
			Dur("duration", duration).
			Msg("mutation failed")
	} else {
		w.logger.Debug().
			Str("storage", st.Name()).
			Str("key", m.Key.String()).
			Str("outcome", outcome.String()).
			Dur("duration", duration).
			Msg("mutation applied")
	}

	return Result{
		Key:      m.Key,
		Kind:     m.Kind,
		Outcome:  outcome,
		Success:  err == nil,
		Error:    err,
		Duration: duration,
	}
}
