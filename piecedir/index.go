// Package piecedir maintains the index mapping a piece key to the
// sealed or staged sector that holds it, so ReadPiece can locate a
// piece's bytes without scanning every sector. Adapted from
// chwjbn-lotus's markets/dagstore wrapper: same storage stack (LevelDB
// fronted by a measure shim) and Start/Close lifecycle, rebuilt here
// around a plain key/location mapping instead of CAR shards.
package piecedir

import (
	"context"
	"encoding/json"
	"os"

	ds "github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	measure "github.com/ipfs/go-ds-measure"
	logging "github.com/ipfs/go-log/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

var log = logging.Logger("piecedir")

const cacheSize = 1024

// Location records where a piece's bytes live.
type Location struct {
	SectorID types.SectorID
	Sealed   bool
	Access   string
}

// Index maps piece keys to Locations, backed by a LevelDB datastore
// with an in-memory LRU in front of it. It is safe for concurrent use.
type Index struct {
	ds    ds.Batching
	cache *lru.Cache[string, Location]
}

func keyFor(pieceKey string) ds.Key {
	return ds.NewKey("/pieces/" + pieceKey)
}

// Open creates (if necessary) dir and opens the piece location index
// stored there.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Errorf("creating piecedir directory %s: %w", dir, err)
	}

	dstore, err := levelds.NewDatastore(dir, &levelds.Options{
		Compression: ldbopts.NoCompression,
		NoSync:      false,
		Strict:      ldbopts.StrictAll,
		ReadOnly:    false,
	})
	if err != nil {
		return nil, xerrors.Errorf("opening piecedir datastore at %s: %w", dir, err)
	}

	mds := measure.New("measure.piecedir.", dstore)

	cache, err := lru.New[string, Location](cacheSize)
	if err != nil {
		return nil, xerrors.Errorf("creating piecedir cache: %w", err)
	}

	return &Index{ds: mds, cache: cache}, nil
}

// Put records the location of pieceKey, overwriting any prior entry.
func (idx *Index) Put(ctx context.Context, pieceKey string, loc Location) error {
	b, err := json.Marshal(loc)
	if err != nil {
		return xerrors.Errorf("marshaling location for %s: %w", pieceKey, err)
	}
	if err := idx.ds.Put(ctx, keyFor(pieceKey), b); err != nil {
		return xerrors.Errorf("persisting location for %s: %w", pieceKey, err)
	}
	idx.cache.Add(pieceKey, loc)
	return nil
}

// Get returns the location of pieceKey, or ErrPieceNotFound if it is
// unknown.
func (idx *Index) Get(ctx context.Context, pieceKey string) (Location, error) {
	if loc, ok := idx.cache.Get(pieceKey); ok {
		return loc, nil
	}

	b, err := idx.ds.Get(ctx, keyFor(pieceKey))
	if err != nil {
		if err == ds.ErrNotFound {
			return Location{}, types.ErrPieceNotFound(pieceKey)
		}
		return Location{}, xerrors.Errorf("loading location for %s: %w", pieceKey, err)
	}

	var loc Location
	if err := json.Unmarshal(b, &loc); err != nil {
		return Location{}, xerrors.Errorf("decoding location for %s: %w", pieceKey, err)
	}
	idx.cache.Add(pieceKey, loc)
	return loc, nil
}

// Delete removes pieceKey's entry, if any.
func (idx *Index) Delete(ctx context.Context, pieceKey string) error {
	idx.cache.Remove(pieceKey)
	if err := idx.ds.Delete(ctx, keyFor(pieceKey)); err != nil {
		return xerrors.Errorf("deleting location for %s: %w", pieceKey, err)
	}
	return nil
}

// Rebuild repopulates the index from a State snapshot, discarding
// whatever was previously stored. It is called once at startup after
// the metadata snapshot has been loaded, so the index can never drift
// out of sync with the sectors it describes.
func (idx *Index) Rebuild(ctx context.Context, state *types.State) error {
	res, err := idx.ds.Query(ctx, ds.Query{Prefix: "/pieces", KeysOnly: true})
	if err != nil {
		return xerrors.Errorf("querying existing piece entries: %w", err)
	}
	entries, err := res.Rest()
	if err != nil {
		return xerrors.Errorf("listing existing piece entries: %w", err)
	}
	for _, e := range entries {
		if err := idx.ds.Delete(ctx, ds.NewKey(e.Key)); err != nil {
			return xerrors.Errorf("clearing stale entry %s: %w", e.Key, err)
		}
	}
	idx.cache.Purge()

	for id, s := range state.Staged {
		for _, p := range s.Pieces {
			if err := idx.Put(ctx, p.PieceKey, Location{SectorID: id, Sealed: false, Access: s.SectorAccess}); err != nil {
				return err
			}
		}
	}
	for id, s := range state.Sealed {
		for _, p := range s.Pieces {
			if err := idx.Put(ctx, p.PieceKey, Location{SectorID: id, Sealed: true, Access: s.SectorAccess}); err != nil {
				return err
			}
		}
	}

	return nil
}

// Close releases the underlying datastore.
func (idx *Index) Close() error {
	return idx.ds.Close()
}
