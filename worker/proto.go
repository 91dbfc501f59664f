package worker

import (
	"github.com/google/uuid"

	"github.com/filecoin-project/go-sectorbuilder/proofs"
	"github.com/filecoin-project/go-sectorbuilder/types"
)

// TaskKind distinguishes the job variants a worker can execute.
type TaskKind int

const (
	TaskSeal TaskKind = iota
	TaskUnseal
	TaskGeneratePoSt
)

// SealResult carries a completed seal's outputs back to the
// scheduler, or the error that aborted it.
type SealResult struct {
	CommD [32]byte
	CommR [32]byte
	PAux  types.PAux
	Proof []byte
	Err   error
}

// UnsealResult reports whether an unseal finished, and why it didn't
// if it failed.
type UnsealResult struct {
	Err error
}

// PoStResult carries the bytes of a generated proof-of-space-time.
type PoStResult struct {
	Proof []byte
	Err   error
}

// Job is one unit of work dispatched to the worker pool. CallID
// identifies the job across its lifetime so the scheduler can match a
// Reply back to the request that produced it.
type Job struct {
	CallID uuid.UUID
	Kind   TaskKind

	Prover   types.ProverID
	SectorID types.SectorID

	// Seal/Unseal fields
	Ticket     types.SealTicket
	StagedPath string
	SealedPath string
	OutPath    string
	CommD      [32]byte
	Pieces     []proofs.PieceInfo

	// PoSt fields
	SectorIDs   []types.SectorID
	SealedPaths map[types.SectorID]string
	CommRs      map[types.SectorID][32]byte
	Randomness  [32]byte
}

// Reply is the outcome of one Job, routed back through the worker
// pool's shared reply channel so the scheduler's single select loop
// can consume results from every worker without per-worker channels.
type Reply struct {
	CallID   uuid.UUID
	Kind     TaskKind
	SectorID types.SectorID
	Seal     *SealResult
	Unseal   *UnsealResult
	PoSt     *PoStResult
}
