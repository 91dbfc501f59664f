// Package kvstore provides the durable key/value layer the scheduler
// uses to persist metadata snapshots and the sector-id counter.
// Grounded on chwjbn-lotus's use of github.com/ipfs/go-datastore as the
// common storage abstraction fronting multiple backends (badger,
// leveldb), wrapped with a measure shim for operation metrics.
package kvstore

import (
	"context"
	"fmt"

	ds "github.com/ipfs/go-datastore"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// SnapshotKey returns the datastore key under which the latest
// serialized State for (prover, sectorSize) is stored. Keys are
// namespaced by both so a single metadata directory can hold
// snapshots for multiple provers/sector sizes without one
// overwriting another's.
func SnapshotKey(prover types.ProverID, sectorSize abi.SectorSize) ds.Key {
	return ds.NewKey(fmt.Sprintf("/sectorbuilder/state/snapshot/%x/%d", prover, sectorSize))
}

// NextSectorIDKey returns the datastore key backing the persisted
// monotonic sector-id counter for (prover, sectorSize).
func NextSectorIDKey(prover types.ProverID, sectorSize abi.SectorSize) ds.Key {
	return ds.NewKey(fmt.Sprintf("/sectorbuilder/state/next-sector-id/%x/%d", prover, sectorSize))
}

// Store is the minimal persistence contract the engine needs: put,
// get, has, delete, and query of whole values keyed by a
// datastore.Key, plus direct access to the underlying datastore.
type Store interface {
	Put(ctx context.Context, key ds.Key, value []byte) error
	Get(ctx context.Context, key ds.Key) ([]byte, error)
	Has(ctx context.Context, key ds.Key) (bool, error)
	Delete(ctx context.Context, key ds.Key) error
	Query(ctx context.Context, q ds.Query) (ds.Results, error)
	Close() error

	// Batching exposes the underlying datastore directly, for
	// components that need the full datastore.Datastore contract
	// (e.g. a storedcounter) rather than this trimmed-down interface.
	Batching() ds.Batching
}
