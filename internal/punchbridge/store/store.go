package store

import (
	"context"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// PunchQueue is the durable local buffer between the device listener and
// the sync worker. Records are never deleted; MarkSynced is the only
// mutation after Append.
type PunchQueue interface {
	// Append persists p as pending and returns its LocalID. The record is
	// durable when Append returns nil.
	Append(ctx context.Context, p types.Punch) (int64, error)

	// FetchPendingBatch returns up to limit pending records, ascending LocalID.
	FetchPendingBatch(ctx context.Context, limit int) ([]types.PunchRecord, error)

	// FetchPendingAfter is FetchPendingBatch restricted to LocalID > afterID.
	FetchPendingAfter(ctx context.Context, afterID int64, limit int) ([]types.PunchRecord, error)

	// MarkSynced flips one record to synced. No-op if already synced.
	MarkSynced(ctx context.Context, localID int64) error

	Stats(ctx context.Context) (types.QueueStats, error)
}

// Directory is the local device-id -> cloud-id cache.
type Directory interface {
	// ReplaceAll swaps the whole cache for users in one transaction.
	ReplaceAll(ctx context.Context, users []types.UserMapping) error

	// Lookup returns the mapping for a canonical device id.
	Lookup(ctx context.Context, deviceID string) (types.UserMapping, bool, error)

	Count(ctx context.Context) (int, error)
}
