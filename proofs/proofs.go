// Package proofs defines the boundary between the engine and the
// proof-of-replication backend: sealing, unsealing, and generating or
// verifying the proofs a chain validator checks. The real backend is
// an FFI binding over the rust-fil-proofs library; tests run against
// a pure-Go fake (see internal/testutil) so the engine's logic can be
// exercised without the native dependency.
package proofs

import (
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// PieceInfo is one piece's contribution to a sector's CommD
// computation: its size and individual piece commitment.
type PieceInfo struct {
	NumBytes abi.UnpaddedPieceSize
	CommP    [32]byte
}

// Sealer is the collaborator boundary the scheduler's worker pool
// calls into to do the actual cryptographic work. Every method may
// block for a long time and must be safe to call concurrently for
// distinct sectors.
type Sealer interface {
	// GeneratePieceCommitment computes the piece commitment (CommP)
	// for a single piece given its raw unpadded bytes.
	GeneratePieceCommitment(pieceData []byte, pieceSize abi.UnpaddedPieceSize) ([32]byte, error)

	// Seal runs the full sealing pipeline (PreCommit1, PreCommit2,
	// Commit) over the staged sector at stagedPath, writing the
	// sealed replica to sealedPath. It returns the sector's CommD,
	// CommR, auxiliary commitments, and the proof bytes.
	Seal(prover types.ProverID, sectorID types.SectorID, ticket types.SealTicket, stagedPath, sealedPath string, pieces []PieceInfo) (commD, commR [32]byte, paux types.PAux, proof []byte, err error)

	// Unseal reverses a seal, writing the plaintext sector bytes to
	// outPath.
	Unseal(prover types.ProverID, sectorID types.SectorID, sealedPath, outPath string, commD [32]byte, ticket types.SealTicket) error

	// VerifySeal checks a previously produced seal proof.
	VerifySeal(prover types.ProverID, sectorID types.SectorID, commR, commD [32]byte, ticket types.SealTicket, proof []byte) (bool, error)

	// VerifyPieceInclusionProof checks that a piece is included in a
	// sector's CommD at the claimed offset.
	VerifyPieceInclusionProof(commD [32]byte, pieceInfo PieceInfo, proof []byte) (bool, error)

	// GeneratePoSt produces a proof of space-time over the given
	// sealed sectors, bound to the supplied randomness.
	GeneratePoSt(prover types.ProverID, sectorIDs []types.SectorID, sealedPaths map[types.SectorID]string, commRs map[types.SectorID][32]byte, randomness [32]byte) ([]byte, error)

	// VerifyPoSt checks a PoSt proof produced by GeneratePoSt.
	VerifyPoSt(prover types.ProverID, sectorIDs []types.SectorID, commRs map[types.SectorID][32]byte, randomness [32]byte, proof []byte) (bool, error)
}
