package scheduler

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// TaskKind enumerates the requests the public API can send to the
// scheduler over its rendezvous channel.
type TaskKind int

const (
	TaskAddPiece TaskKind = iota
	TaskGetSealStatus
	TaskGetSealedSectors
	TaskGetStagedSectors
	TaskReadPiece
	TaskSealAll
	TaskGeneratePoSt
	TaskShutdown
)

// Task wraps one request plus the one-shot reply channel the sender
// blocks on. Only the fields relevant to Kind are meaningful.
type Task struct {
	Kind TaskKind

	// TaskAddPiece
	PieceKey   string
	NumBytes   abi.UnpaddedPieceSize
	Reader     io.Reader
	StoreUntil int64

	// TaskGetSealStatus
	SectorID types.SectorID

	// TaskGetSealedSectors
	CheckHealth bool

	// TaskSealAll
	ForceAll bool

	// TaskGeneratePoSt
	SectorIDs  []types.SectorID
	Randomness [32]byte

	ReplyCh chan Reply
}

// Reply carries back whichever result fields are relevant to the Task
// that produced it, plus Err if the operation failed.
type Reply struct {
	SectorID      types.SectorID
	SectorIDs     []types.SectorID
	SealStatus    types.SealStatus
	SealedSectors []types.SealedSectorHealth
	StagedSectors []types.StagedSectorMetadata
	Bytes         []byte
	Proof         []byte
	Err           error
}
