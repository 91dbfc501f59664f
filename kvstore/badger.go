package kvstore

import (
	"context"
	"os"

	badger2 "github.com/ipfs/go-ds-badger2"
	ds "github.com/ipfs/go-datastore"
	measure "github.com/ipfs/go-ds-measure"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("kvstore")

// BadgerStore is a Store backed by a badger2 datastore, wrapped in a
// measure shim so operation counts/latencies surface through the
// engine's metrics views the way chwjbn-lotus wraps its dagstore
// metadata store.
type BadgerStore struct {
	ds ds.Batching
}

var _ Store = (*BadgerStore)(nil)

// Open creates (if necessary) dir and opens a badger2 datastore there.
func Open(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Errorf("creating kvstore directory %s: %w", dir, err)
	}

	opts := badger2.DefaultOptions
	bds, err := badger2.NewDatastore(dir, &opts)
	if err != nil {
		return nil, xerrors.Errorf("opening badger datastore at %s: %w", dir, err)
	}

	mds := measure.New("measure.sectorbuilder.", bds)
	return &BadgerStore{ds: mds}, nil
}

func (b *BadgerStore) Put(ctx context.Context, key ds.Key, value []byte) error {
	if err := b.ds.Put(ctx, key, value); err != nil {
		return xerrors.Errorf("putting %s: %w", key, err)
	}
	return nil
}

func (b *BadgerStore) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	v, err := b.ds.Get(ctx, key)
	if err != nil {
		return nil, xerrors.Errorf("getting %s: %w", key, err)
	}
	return v, nil
}

func (b *BadgerStore) Has(ctx context.Context, key ds.Key) (bool, error) {
	ok, err := b.ds.Has(ctx, key)
	if err != nil {
		return false, xerrors.Errorf("checking existence of %s: %w", key, err)
	}
	return ok, nil
}

func (b *BadgerStore) Delete(ctx context.Context, key ds.Key) error {
	if err := b.ds.Delete(ctx, key); err != nil {
		return xerrors.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (b *BadgerStore) Query(ctx context.Context, q ds.Query) (ds.Results, error) {
	res, err := b.ds.Query(ctx, q)
	if err != nil {
		return nil, xerrors.Errorf("querying kvstore: %w", err)
	}
	return res, nil
}

func (b *BadgerStore) Close() error {
	return b.ds.Close()
}

func (b *BadgerStore) Batching() ds.Batching {
	return b.ds
}
