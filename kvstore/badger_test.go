package kvstore

import (
	"context"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

func TestBadgerStore_PutGetHasDelete(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := ds.NewKey("/foo/bar")

	ok, err := store.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, key, []byte("value")))

	ok, err = store.Has(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "value", string(v))

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBadgerStore_SnapshotKeyRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	prover := types.ProverID{1, 2, 3}
	key := SnapshotKey(prover, abi.SectorSize(2048))
	require.NoError(t, store.Put(ctx, key, []byte("snapshot-bytes")))

	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "snapshot-bytes", string(v))
}

func TestSnapshotKey_NamespacesByProverAndSectorSize(t *testing.T) {
	a := SnapshotKey(types.ProverID{1}, abi.SectorSize(2048))
	b := SnapshotKey(types.ProverID{2}, abi.SectorSize(2048))
	c := SnapshotKey(types.ProverID{1}, abi.SectorSize(4096))
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestBadgerStore_Query(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, ds.NewKey("/pieces/a"), []byte("1")))
	require.NoError(t, store.Put(ctx, ds.NewKey("/pieces/b"), []byte("2")))

	res, err := store.Query(ctx, ds.Query{Prefix: "/pieces"})
	require.NoError(t, err)
	entries, err := res.Rest()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
