// Package packer implements the engine's bin-packing admission logic
// as pure functions over *types.State: no locks, no I/O, no channels.
// It is grounded on dgbo-lotus's extern/storage-sealing/input.go
// (updateInput/tryCreateDealSector) and on the original Rust
// sector-builder's helpers module (simple_builder.rs's
// add_piece_first/get_sectors_ready_for_sealing), generalized to a
// deal-size-agnostic admission rule.
package packer

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// ChooseSectorForPiece selects the staged sector that should receive
// an incoming piece of size numBytes, or allocates a new one. It
// iterates staged sectors in ascending SectorID order and accepts the
// first AcceptingData sector whose remaining capacity (after the
// piece-alignment padding rule) admits the piece. If none fits, a new
// staged sector is allocated with id newID, subject to
// maxNumStagedSectors — the count of sectors currently in
// AcceptingData or FullyPacked is compared against the cap.
//
// Returns the chosen/created sector and whether it was newly created.
func ChooseSectorForPiece(state *types.State, numBytes abi.UnpaddedPieceSize, maxUserBytesPerStagedSector abi.UnpaddedPieceSize, maxNumStagedSectors int, newID types.SectorID) (*types.StagedSectorMetadata, bool, error) {
	for _, id := range sortedStagedIDs(state) {
		s := state.Staged[id]
		if s.SealStatus.Kind != types.AcceptingData {
			continue
		}

		end := SectorEndOffset(s.Pieces)
		offset := AlignOffset(end, numBytes)
		if offset+numBytes <= maxUserBytesPerStagedSector {
			return s, false, nil
		}
	}

	if countOpenStaged(state) >= maxNumStagedSectors {
		return nil, false, types.ErrFullyStaged
	}

	fresh := &types.StagedSectorMetadata{
		SectorID:     newID,
		SealStatus:   types.SealStatus{Kind: types.AcceptingData},
	}
	state.Staged[newID] = fresh

	return fresh, true, nil
}

// AlignOffset returns the offset at which a piece of size n should be
// placed given that `used` bytes of the sector are already occupied:
// the smallest multiple of the next-power-of-two >= n that is itself
// >= used.
func AlignOffset(used abi.UnpaddedPieceSize, n abi.UnpaddedPieceSize) abi.UnpaddedPieceSize {
	align := uint64(1)
	for align < uint64(n) {
		align <<= 1
	}
	rem := uint64(used) % align
	if rem == 0 {
		return used
	}
	return used + abi.UnpaddedPieceSize(align-rem)
}

// SectorEndOffset returns the first unused byte offset in a staged
// sector after placing every piece in pieces under the padding rule —
// where the next piece would be written, and the true on-disk size of
// the sector so far (which can exceed the raw sum of piece sizes once
// alignment gaps are counted).
func SectorEndOffset(pieces []types.PieceMetadata) abi.UnpaddedPieceSize {
	var end abi.UnpaddedPieceSize
	for _, p := range pieces {
		end = AlignOffset(end, p.NumBytes) + p.NumBytes
	}
	return end
}

// GetSectorsReadyForSealing returns the ids of every AcceptingData
// staged sector that should transition to ReadyForSealing: forced
// (seal-all), full (used >= maxBytes), or the oldest sector when the
// staged cap has been reached. Matching sectors are mutated in place
// to ReadyForSealing; the returned slice is in ascending SectorID
// order.
func GetSectorsReadyForSealing(state *types.State, maxUserBytesPerStagedSector abi.UnpaddedPieceSize, maxNumStagedSectors int, forceAll bool) []types.SectorID {
	ids := sortedStagedIDs(state)

	open := countOpenStaged(state)
	atCap := open >= maxNumStagedSectors

	var oldestOpenID types.SectorID
	haveOldest := false
	if atCap {
		for _, id := range ids {
			s := state.Staged[id]
			if s.SealStatus.Kind == types.AcceptingData || s.SealStatus.Kind == types.FullyPacked {
				oldestOpenID = id
				haveOldest = true
				break
			}
		}
	}

	var ready []types.SectorID
	for _, id := range ids {
		s := state.Staged[id]
		if s.SealStatus.Kind != types.AcceptingData {
			continue
		}

		full := SectorEndOffset(s.Pieces) >= maxUserBytesPerStagedSector
		isOldestAtCap := atCap && haveOldest && id == oldestOpenID

		if forceAll || full || isOldestAtCap {
			s.SealStatus = types.SealStatus{Kind: types.ReadyForSealing}
			ready = append(ready, id)
		}
	}

	return ready
}

// countOpenStaged returns the number of staged sectors whose status
// is AcceptingData or FullyPacked — the set bounded by
// max_num_staged_sectors.
func countOpenStaged(state *types.State) int {
	n := 0
	for _, s := range state.Staged {
		if s.SealStatus.Kind == types.AcceptingData || s.SealStatus.Kind == types.FullyPacked {
			n++
		}
	}
	return n
}

func sortedStagedIDs(state *types.State) []types.SectorID {
	ids := make([]types.SectorID, 0, len(state.Staged))
	for id := range state.Staged {
		ids = append(ids, id)
	}
	// insertion sort is plenty: max_num_staged_sectors is small
	// (single-digit to low hundreds) in every real deployment.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
