package types

import (
	"github.com/ipfs/go-cid"

	commcid "github.com/filecoin-project/go-fil-commcid"
)

// CommDCID returns the CID view of a sealed sector's unsealed data
// commitment, the form external tooling (retrieval clients, chain
// explorers) expects rather than the raw 32-byte digest.
func (s *SealedSectorMetadata) CommDCID() (cid.Cid, error) {
	return commcid.DataCommitmentV1ToCID(s.CommD[:])
}

// CommRCID returns the CID view of a sealed sector's replica
// commitment.
func (s *SealedSectorMetadata) CommRCID() (cid.Cid, error) {
	return commcid.ReplicaCommitmentV1ToCID(s.CommR[:])
}

// PieceCID returns the CID view of a piece's commitment, or false if
// the piece has not been sealed yet and no commitment is recorded. A
// piece commitment uses the same FR32 Merkle encoding as a sector's
// data commitment, so the same CID codec applies.
func (p *PieceMetadata) PieceCID() (cid.Cid, bool, error) {
	if p.CommP == nil {
		return cid.Undef, false, nil
	}
	c, err := commcid.DataCommitmentV1ToCID(p.CommP[:])
	return c, true, err
}
