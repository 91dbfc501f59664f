package sectorstore

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

func TestNewLocalSectorStore_CreatesDirectories(t *testing.T) {
	root := t.TempDir()
	_, err := NewLocalSectorStore(root, 2048)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "staged"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "sealed"))
	require.NoError(t, err)
}

func TestLocalSectorStore_AccessNamesAreDeterministic(t *testing.T) {
	store, err := NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)

	var prover types.ProverID
	prover[0] = 7

	a1, err := store.NewStagingAccess(prover, 5, false)
	require.NoError(t, err)
	a2, err := store.NewStagingAccess(prover, 5, false)
	require.NoError(t, err)
	require.Equal(t, a1, a2)

	unseal, err := store.NewStagingAccess(prover, 5, true)
	require.NoError(t, err)
	require.NotEqual(t, a1, unseal)
}

func TestLocalSectorStore_WriteReadChecksumAndStat(t *testing.T) {
	store, err := NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)

	var prover types.ProverID
	access, err := store.NewStagingAccess(prover, 1, false)
	require.NoError(t, err)
	path := store.StagedPath(prover, access)

	w, err := store.OpenAppend(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	n, err := store.StatLen(path)
	require.NoError(t, err)
	require.EqualValues(t, 11, n)

	r, err := store.OpenRead(path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(b))

	sum1, err := store.Checksum(path)
	require.NoError(t, err)

	w2, err := store.OpenAppend(path)
	require.NoError(t, err)
	_, err = w2.Write([]byte("!"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	sum2, err := store.Checksum(path)
	require.NoError(t, err)
	require.NotEqual(t, sum1, sum2)
}

func TestLocalSectorStore_ReadRawRespectsOffsetAndLength(t *testing.T) {
	store, err := NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)

	var prover types.ProverID
	access, err := store.NewSealedAccess(prover, 1)
	require.NoError(t, err)
	path := store.SealedPath(prover, access)

	w, err := store.OpenAppend(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := store.ReadRaw(prover, path, 3, 4)
	require.NoError(t, err)
	require.Equal(t, "3456", string(b))
}

func TestLocalSectorStore_MaxUnsealedBytesPerSector(t *testing.T) {
	store, err := NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)
	require.Equal(t, abi.PaddedPieceSize(2048).Unpadded(), store.MaxUnsealedBytesPerSector())
}

func TestLocalSectorStore_StatLenMissingFile(t *testing.T) {
	store, err := NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)
	_, err = store.StatLen(filepath.Join(store.stagedDir, "does-not-exist"))
	require.Error(t, err)
}
