// Package sectorstore manages on-disk sector storage: allocating
// sector-access names, mapping them to filesystem paths, opening
// readers/writers, and computing checksums. Grounded on chwjbn-lotus's
// sector-storage path conventions (staged vs. sealed directories,
// deterministic access names derived from sector id).
package sectorstore

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// Store is the engine's view of on-disk sector storage. Implementations
// must be safe for concurrent operations on distinct paths; callers
// (the scheduler) are responsible for serializing writes to the same
// path.
type Store interface {
	// NewStagingAccess returns a unique, collision-free access name
	// for a staged sector, deterministic from sectorID so a restart
	// reproduces the same path. forUnseal is set when the access is
	// being created as a scratch destination for an unseal operation
	// rather than as the sector's primary staging file.
	NewStagingAccess(prover types.ProverID, sectorID types.SectorID, forUnseal bool) (string, error)

	// NewSealedAccess returns a unique access name for a sealed
	// sector.
	NewSealedAccess(prover types.ProverID, sectorID types.SectorID) (string, error)

	StagedPath(prover types.ProverID, access string) string
	SealedPath(prover types.ProverID, access string) string

	OpenAppend(path string) (io.WriteCloser, error)
	OpenRead(path string) (io.ReadCloser, error)
	ReadRaw(prover types.ProverID, path string, offset, length uint64) ([]byte, error)

	// MaxUnsealedBytesPerSector is the unpadded capacity of one
	// sector, derived from the configured sector size.
	MaxUnsealedBytesPerSector() abi.UnpaddedPieceSize

	// Checksum computes the BLAKE2b-256 checksum of the file at path.
	Checksum(path string) ([32]byte, error)

	// StatLen returns the on-disk length of the file at path.
	StatLen(path string) (uint64, error)
}
