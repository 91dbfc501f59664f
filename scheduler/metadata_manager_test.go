package scheduler

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/internal/testutil"
	"github.com/filecoin-project/go-sectorbuilder/kvstore"
	"github.com/filecoin-project/go-sectorbuilder/piecedir"
	"github.com/filecoin-project/go-sectorbuilder/sectorstore"
	"github.com/filecoin-project/go-sectorbuilder/types"
)

const testSectorSize = abi.SectorSize(2048)

func newTestManager(t *testing.T) *MetadataManager {
	t.Helper()

	kv, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store, err := sectorstore.NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)

	index, err := piecedir.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	mm, err := NewMetadataManager(context.Background(), kv, store, index, &testutil.FakeSealer{}, types.ProverID{}, testSectorSize, 2, RandomTicketSource())
	require.NoError(t, err)
	return mm
}

func TestMetadataManager_AddPiece_SingleBelowCapacity(t *testing.T) {
	mm := newTestManager(t)

	sid, err := mm.AddPiece(context.Background(), "a", 127, bytes.NewReader(make([]byte, 127)), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, sid)

	staged := mm.GetStagedSectors()
	require.Len(t, staged, 1)
	require.Equal(t, types.AcceptingData, staged[0].SealStatus.Kind)
}

func TestMetadataManager_AddPiece_RejectsOversizedPiece(t *testing.T) {
	mm := newTestManager(t)

	_, err := mm.AddPiece(context.Background(), "a", 100000, bytes.NewReader(make([]byte, 100000)), 0)
	require.Error(t, err)
	require.True(t, types.IsUnrecoverable(err) == false)
}

func TestMetadataManager_GetSealStatus_UnknownSector(t *testing.T) {
	mm := newTestManager(t)

	_, err := mm.GetSealStatus(99)
	require.Error(t, err)
}

func TestMetadataManager_SnapshotRoundTrip(t *testing.T) {
	mm := newTestManager(t)
	ctx := context.Background()

	_, err := mm.AddPiece(ctx, "a", 127, bytes.NewReader(make([]byte, 127)), 0)
	require.NoError(t, err)

	reloaded, err := loadOrInitState(ctx, mm.kv, mm.snapshotKey)
	require.NoError(t, err)
	require.Len(t, reloaded.Staged, 1)
	require.Equal(t, "a", reloaded.Staged[1].Pieces[0].PieceKey)
}

func TestMetadataManager_GeneratePoSt_DedupesSectorIDs(t *testing.T) {
	mm := newTestManager(t)

	mm.state.Sealed[1] = &types.SealedSectorMetadata{SectorID: 1, SectorAccess: "sealed-1", CommR: [32]byte{1}}
	mm.state.Sealed[2] = &types.SealedSectorMetadata{SectorID: 2, SectorAccess: "sealed-2", CommR: [32]byte{2}}

	sealer := mm.sealer.(*testutil.FakeSealer)
	var randomness [32]byte
	want, err := sealer.GeneratePoSt(mm.prover, []types.SectorID{1, 2}, nil, map[types.SectorID][32]byte{1: {1}, 2: {2}}, randomness)
	require.NoError(t, err)

	got, err := mm.GeneratePoSt([]types.SectorID{2, 1, 1, 2}, randomness)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMetadataManager_GeneratePoSt_RejectsUnsealedSector(t *testing.T) {
	mm := newTestManager(t)

	mm.state.Sealed[1] = &types.SealedSectorMetadata{SectorID: 1, SectorAccess: "sealed-1", CommR: [32]byte{1}}

	var randomness [32]byte
	_, err := mm.GeneratePoSt([]types.SectorID{1, 2}, randomness)
	require.Error(t, err)
}

func TestMetadataManager_SectorIDCounter_SurvivesLostSnapshot(t *testing.T) {
	ctx := context.Background()

	kv, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store, err := sectorstore.NewLocalSectorStore(t.TempDir(), 2048)
	require.NoError(t, err)

	index, err := piecedir.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	prover := types.ProverID{}

	mm1, err := NewMetadataManager(ctx, kv, store, index, &testutil.FakeSealer{}, prover, testSectorSize, 2, RandomTicketSource())
	require.NoError(t, err)
	sid, err := mm1.AddPiece(ctx, "a", 127, bytes.NewReader(make([]byte, 127)), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, sid)

	// Simulate losing the snapshot that recorded sector 1: the reloaded
	// state no longer knows about it, but the counter that actually
	// allocated it has already moved past it.
	require.NoError(t, kv.Delete(ctx, kvstore.SnapshotKey(prover, testSectorSize)))

	mm2, err := NewMetadataManager(ctx, kv, store, index, &testutil.FakeSealer{}, prover, testSectorSize, 2, RandomTicketSource())
	require.NoError(t, err)
	sid2, err := mm2.AddPiece(ctx, "b", 127, bytes.NewReader(make([]byte, 127)), 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, sid2, "the persisted counter must not reissue sector 1 even though the reloaded snapshot forgot about it")
}

func TestMetadataManager_ReadyForSealing_ForceAll(t *testing.T) {
	mm := newTestManager(t)
	ctx := context.Background()

	_, err := mm.AddPiece(ctx, "a", 127, bytes.NewReader(make([]byte, 127)), 0)
	require.NoError(t, err)

	ready, err := mm.ReadyForSealing(ctx, true)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	status, err := mm.GetSealStatus(ready[0])
	require.NoError(t, err)
	require.Equal(t, types.ReadyForSealing, status.Kind)
}
