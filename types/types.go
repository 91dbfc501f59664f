package types

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// SectorID is the monotonically increasing, per-prover sector
// identifier. It is never reused.
type SectorID uint64

// PieceMetadata describes one piece stored inside a staged or sealed
// sector. Before sealing, CommP and PieceInclusionProof are nil; both
// are populated once the containing sector has been sealed.
type PieceMetadata struct {
	PieceKey            string
	NumBytes            abi.UnpaddedPieceSize
	CommP                *[32]byte
	PieceInclusionProof  []byte

	// StoreUntil is accepted from callers of AddPiece and carried
	// through unchanged. The engine never acts on it.
	StoreUntil int64
}

// SealTicket is chain-derived entropy bound into a seal. The same
// ticket must reproduce or verify a seal deterministically.
type SealTicket struct {
	BlockHeight uint64
	TicketBytes [32]byte
}

// SealStatusKind enumerates the seal state machine's discrete states.
type SealStatusKind int

const (
	AcceptingData SealStatusKind = iota
	FullyPacked
	ReadyForSealing
	Paused
	Sealing
	Sealed
	Failed
)

func (k SealStatusKind) String() string {
	switch k {
	case AcceptingData:
		return "AcceptingData"
	case FullyPacked:
		return "FullyPacked"
	case ReadyForSealing:
		return "ReadyForSealing"
	case Paused:
		return "Paused"
	case Sealing:
		return "Sealing"
	case Sealed:
		return "Sealed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SealStatus is a tagged union over the seal state machine's states.
// Only the field matching Kind is meaningful.
type SealStatus struct {
	Kind SealStatusKind

	// set when Kind == Sealing or Kind == Paused-from-Sealing-intent
	Ticket *SealTicket

	// set when Kind == Sealed
	SectorAccess string

	// set when Kind == Failed
	FailureReason string
}

// StagedSectorMetadata is the in-memory + persisted record of a
// staged (not yet sealed) sector.
type StagedSectorMetadata struct {
	SectorID      SectorID
	SectorAccess  string
	Pieces        []PieceMetadata
	SealStatus    SealStatus
}

// UsedBytes returns the sum of the unpadded sizes of every piece
// currently staged in the sector. It does not include inter-piece
// padding — see internal/packer for the padding/alignment arithmetic.
func (s *StagedSectorMetadata) UsedBytes() abi.UnpaddedPieceSize {
	var used abi.UnpaddedPieceSize
	for _, p := range s.Pieces {
		used += p.NumBytes
	}
	return used
}

// PAux holds the persistent auxiliary commitments produced by a seal,
// required to reconstruct PoSt replica info later.
type PAux struct {
	CommC      [32]byte
	CommRLast  [32]byte
}

// SealedSectorMetadata is the in-memory + persisted record of a
// sealed sector. Sealed entries are never deleted by the engine.
type SealedSectorMetadata struct {
	SectorID         SectorID
	SectorAccess     string
	Pieces           []PieceMetadata
	CommD            [32]byte
	CommR            [32]byte
	PAux             PAux
	Proof            []byte
	Blake2bChecksum  [32]byte
	Len              uint64
	SealTicket       SealTicket
}

// ProverID is the 31-byte identity under which sealed data is
// committed. Callers normally derive it from a miner address via
// ProverIDFromAddress.
type ProverID [31]byte

// ProverIDFromAddress derives a ProverID from a miner's on-chain
// actor ID, the way chwjbn-lotus's minerSector helper derives FFI
// prover ids from address.Address.
func ProverIDFromAddress(addr address.Address) (ProverID, error) {
	id, err := address.IDFromAddress(addr)
	if err != nil {
		return ProverID{}, err
	}
	var out ProverID
	// little-endian actor id occupies the low bytes; the remainder
	// stays zero, matching the FFI convention of a zero-padded id.
	for i := 0; i < 8 && i < len(out); i++ {
		out[i] = byte(id >> (8 * uint(i)))
	}
	return out, nil
}

// HealthStatus is the result of validating one sealed sector's
// on-disk bytes against its recorded length and checksum.
type HealthStatus int

const (
	HealthOK HealthStatus = iota
	HealthInvalidLength
	HealthInvalidChecksum
	HealthMissing
)

func (h HealthStatus) String() string {
	switch h {
	case HealthOK:
		return "Ok"
	case HealthInvalidLength:
		return "ErrorInvalidLength"
	case HealthInvalidChecksum:
		return "ErrorInvalidChecksum"
	case HealthMissing:
		return "ErrorMissing"
	default:
		return "Unknown"
	}
}

// SealedSectorHealth pairs a sealed sector's metadata with an
// optionally-computed health result.
type SealedSectorHealth struct {
	Meta   SealedSectorMetadata
	Health *HealthStatus
}
