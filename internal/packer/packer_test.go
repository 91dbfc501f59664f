package packer

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

const maxBytes = abi.UnpaddedPieceSize(1016)

func TestChooseSectorForPiece_SingleBelowCapacity(t *testing.T) {
	state := types.NewState(0)

	s, created, err := ChooseSectorForPiece(state, 127, maxBytes, 2, 1)
	require.NoError(t, err)
	require.True(t, created)
	require.EqualValues(t, 1, s.SectorID)
	require.Equal(t, types.AcceptingData, s.SealStatus.Kind)
}

func TestChooseSectorForPiece_BinPacksIntoSameSector(t *testing.T) {
	state := types.NewState(0)

	s1, _, err := ChooseSectorForPiece(state, 127, maxBytes, 2, 1)
	require.NoError(t, err)
	s1.Pieces = append(s1.Pieces, types.PieceMetadata{PieceKey: "a", NumBytes: 127})

	s2, created, err := ChooseSectorForPiece(state, 127, maxBytes, 2, 2)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, s1.SectorID, s2.SectorID)
}

func TestChooseSectorForPiece_OverflowAllocatesNewSector(t *testing.T) {
	state := types.NewState(0)

	s1, _, err := ChooseSectorForPiece(state, maxBytes, maxBytes, 2, 1)
	require.NoError(t, err)
	s1.Pieces = append(s1.Pieces, types.PieceMetadata{PieceKey: "a", NumBytes: maxBytes})
	s1.SealStatus = types.SealStatus{Kind: types.FullyPacked}

	s2, created, err := ChooseSectorForPiece(state, 1, maxBytes, 2, 2)
	require.NoError(t, err)
	require.True(t, created)
	require.EqualValues(t, 2, s2.SectorID)
}

func TestChooseSectorForPiece_AdmissionRefusedWhenFullyStaged(t *testing.T) {
	state := types.NewState(0)

	s1, _, err := ChooseSectorForPiece(state, maxBytes, maxBytes, 1, 1)
	require.NoError(t, err)
	s1.Pieces = append(s1.Pieces, types.PieceMetadata{PieceKey: "a", NumBytes: maxBytes})
	s1.SealStatus = types.SealStatus{Kind: types.FullyPacked}

	_, _, err = ChooseSectorForPiece(state, 1, maxBytes, 1, 2)
	require.ErrorIs(t, err, types.ErrFullyStaged)
}

func TestChooseSectorForPiece_NeverExceedsCapacityUnderPadding(t *testing.T) {
	state := types.NewState(0)
	sizes := []abi.UnpaddedPieceSize{400, 127, 127, 1, 64, 32}

	nextID := types.SectorID(1)
	for _, sz := range sizes {
		s, created, err := ChooseSectorForPiece(state, sz, maxBytes, 100, nextID)
		require.NoError(t, err)
		if created {
			nextID++
		}

		used := SectorEndOffset(s.Pieces)
		offset := AlignOffset(used, sz)
		require.LessOrEqual(t, uint64(offset+sz), uint64(maxBytes))

		s.Pieces = append(s.Pieces, types.PieceMetadata{NumBytes: sz})
	}
}

func TestAlignOffset(t *testing.T) {
	require.EqualValues(t, 0, AlignOffset(0, 127))
	require.EqualValues(t, 128, AlignOffset(100, 127))
	require.EqualValues(t, 1016, AlignOffset(1016, 1))
}

func TestGetSectorsReadyForSealing_ForceAll(t *testing.T) {
	state := types.NewState(0)
	state.Staged[1] = &types.StagedSectorMetadata{SectorID: 1, SealStatus: types.SealStatus{Kind: types.AcceptingData}}
	state.Staged[2] = &types.StagedSectorMetadata{SectorID: 2, SealStatus: types.SealStatus{Kind: types.AcceptingData}}

	ready := GetSectorsReadyForSealing(state, maxBytes, 10, true)
	require.Len(t, ready, 2)
	require.Equal(t, types.ReadyForSealing, state.Staged[1].SealStatus.Kind)
	require.Equal(t, types.ReadyForSealing, state.Staged[2].SealStatus.Kind)
}

func TestGetSectorsReadyForSealing_FullSector(t *testing.T) {
	state := types.NewState(0)
	state.Staged[1] = &types.StagedSectorMetadata{
		SectorID:   1,
		Pieces:     []types.PieceMetadata{{NumBytes: maxBytes}},
		SealStatus: types.SealStatus{Kind: types.AcceptingData},
	}

	ready := GetSectorsReadyForSealing(state, maxBytes, 10, false)
	require.Equal(t, []types.SectorID{1}, ready)
}

func TestGetSectorsReadyForSealing_OldestAtCap(t *testing.T) {
	state := types.NewState(0)
	state.Staged[1] = &types.StagedSectorMetadata{SectorID: 1, SealStatus: types.SealStatus{Kind: types.AcceptingData}}
	state.Staged[2] = &types.StagedSectorMetadata{SectorID: 2, SealStatus: types.SealStatus{Kind: types.AcceptingData}}

	ready := GetSectorsReadyForSealing(state, maxBytes, 2, false)
	require.Equal(t, []types.SectorID{1}, ready)
	require.Equal(t, types.ReadyForSealing, state.Staged[1].SealStatus.Kind)
	require.Equal(t, types.AcceptingData, state.Staged[2].SealStatus.Kind)
}
