package proofs

import (
	paramfetch "github.com/filecoin-project/go-paramfetch"
	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("proofs")

// ParameterCache ensures the Groth16 parameter and verifying-key
// files for a given sector size are present on disk before the first
// real seal is attempted, the way lotus's miner init command fetches
// them ahead of sealing.
type ParameterCache struct {
	paramsJSON []byte
}

// NewParameterCache wraps the parameters manifest (the JSON blob
// bundled with the proofs backend describing each parameter file's
// name, digest, and sector size).
func NewParameterCache(paramsJSON []byte) *ParameterCache {
	return &ParameterCache{paramsJSON: paramsJSON}
}

// EnsureHydrated downloads (if necessary) every parameter file
// relevant to sectorSize into paramfetch's default cache directory.
func (p *ParameterCache) EnsureHydrated(sectorSize abi.SectorSize) error {
	log.Infow("ensuring proof parameters are present", "sector-size", sectorSize)
	if err := paramfetch.GetParams(p.paramsJSON, uint64(sectorSize)); err != nil {
		return xerrors.Errorf("fetching proof parameters for sector size %d: %w", sectorSize, err)
	}
	return nil
}
