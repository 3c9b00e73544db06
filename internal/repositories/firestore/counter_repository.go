package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	platform "github.com/shopnetic/api/internal/platform/firestore"
	"github.com/shopnetic/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     int64     `firestore:"maxValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository issues monotonically increasing sequence values backed by
// a counters collection. The first call for an unknown counter creates it.
type CounterRepository struct {
	provider *platform.Provider
}

// NewCounterRepository constructs a Firestore backed counter repository.
func NewCounterRepository(provider *platform.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository: provider is required")
	}
	return &CounterRepository{provider: provider}, nil
}

// Next reserves and returns the next value of the named counter.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		step = 1
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, wrapCounterError("counters.next", err)
	}

	ref := client.Collection(countersCollection).Doc(counterID)
	var value int64

	err = platform.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()

		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				value = step
				return tx.Create(ref, counterDocument{
					CurrentValue: value,
					Step:         step,
					UpdatedAt:    now,
				})
			}
			return platform.WrapError("counters.next", err)
		}

		var doc counterDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode counter %s: %w", counterID, err)
		}

		next := doc.CurrentValue + step
		if doc.MaxValue > 0 && next > doc.MaxValue {
			return repositories.NewCounterError(
				repositories.CounterErrorExhausted,
				fmt.Sprintf("counter %s exhausted at %d", counterID, doc.CurrentValue),
				nil,
			)
		}

		doc.CurrentValue = next
		doc.Step = step
		doc.UpdatedAt = now
		value = next
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, wrapCounterError("counters.next", err)
	}
	return value, nil
}

func wrapCounterError(op string, err error) error {
	if err == nil {
		return nil
	}
	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		if counterErr.Op == "" {
			counterErr.Op = op
		}
		return counterErr
	}
	return repositories.NewCounterError(repositories.CounterErrorUnknown, err.Error(), err)
}
