package storage

import (
	"context"

	"ammledger/internal/model"
)

// Storage defines a sink for ledger event records and account snapshots.
type Storage interface {
	PutEventBatch(ctx context.Context, events []model.LedgerEvent) error
	PutAccountSnapshots(ctx context.Context, snapshots []model.AccountSnapshot) error
}

// Multi writes to every storage in order and stops at the first error.
type Multi []Storage

func (m Multi) PutEventBatch(ctx context.Context, events []model.LedgerEvent) error {
	for _, s := range m {
		if err := s.PutEventBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutAccountSnapshots(ctx context.Context, snapshots []model.AccountSnapshot) error {
	for _, s := range m {
		if err := s.PutAccountSnapshots(ctx, snapshots); err != nil {
			return err
		}
	}
	return nil
}
