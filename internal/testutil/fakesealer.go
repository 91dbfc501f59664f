// Package testutil provides a deterministic, pure-Go stand-in for the
// FFI proofs backend so engine tests can exercise sealing/unsealing
// and PoSt generation without the native rust-fil-proofs dependency.
package testutil

import (
	"io"
	"os"

	commp "github.com/filecoin-project/go-fil-commp-hashhash"
	"github.com/filecoin-project/go-state-types/abi"
	blake2b "github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/proofs"
	"github.com/filecoin-project/go-sectorbuilder/types"
)

// FakeSealer implements proofs.Sealer with an invertible XOR mask in
// place of the real sealing transform. CommD is the commP of the staged
// bytes; CommR and PAux are BLAKE2b-derived stand-ins. It is deterministic: the same inputs always
// produce the same outputs, which is all the engine's own tests
// require.
type FakeSealer struct{}

var _ proofs.Sealer = (*FakeSealer)(nil)

func (f *FakeSealer) GeneratePieceCommitment(pieceData []byte, pieceSize abi.UnpaddedPieceSize) ([32]byte, error) {
	return commPOf(pieceData)
}

func commPOf(data []byte) ([32]byte, error) {
	var out [32]byte

	// commP is undefined for inputs shorter than MinPiecePayload, so
	// short inputs are zero-filled up to that size first.
	if uint64(len(data)) < commp.MinPiecePayload {
		padded := make([]byte, commp.MinPiecePayload)
		copy(padded, data)
		data = padded
	}

	calc := &commp.Calc{}
	if _, err := calc.Write(data); err != nil {
		return out, xerrors.Errorf("writing to commp calculator: %w", err)
	}
	digest, _, err := calc.Digest()
	if err != nil {
		return out, xerrors.Errorf("computing commp digest: %w", err)
	}
	copy(out[:], digest)
	return out, nil
}

func maskKey(prover types.ProverID, sectorID types.SectorID, ticket types.SealTicket) [32]byte {
	h := blake2b.New256()
	h.Write(prover[:])
	var idBuf [8]byte
	for i := 0; i < 8; i++ {
		idBuf[i] = byte(sectorID >> (8 * uint(i)))
	}
	h.Write(idBuf[:])
	h.Write(ticket.TicketBytes[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func xorStream(key [32]byte, in io.Reader, out io.Writer) error {
	buf := make([]byte, 32*1024)
	pos := 0
	for {
		n, err := in.Read(buf)
		for i := 0; i < n; i++ {
			buf[i] ^= key[(pos+i)%len(key)]
		}
		pos += n
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (f *FakeSealer) Seal(prover types.ProverID, sectorID types.SectorID, ticket types.SealTicket, stagedPath, sealedPath string, pieces []proofs.PieceInfo) (commD, commR [32]byte, paux types.PAux, proof []byte, err error) {
	in, err := os.Open(stagedPath)
	if err != nil {
		return commD, commR, paux, nil, xerrors.Errorf("opening staged sector %s: %w", stagedPath, err)
	}
	defer in.Close()

	out, err := os.Create(sealedPath)
	if err != nil {
		return commD, commR, paux, nil, xerrors.Errorf("creating sealed sector %s: %w", sealedPath, err)
	}
	defer out.Close()

	key := maskKey(prover, sectorID, ticket)
	if err := xorStream(key, in, out); err != nil {
		return commD, commR, paux, nil, xerrors.Errorf("masking sector bytes: %w", err)
	}

	raw, err := os.ReadFile(stagedPath)
	if err != nil {
		return commD, commR, paux, nil, xerrors.Errorf("re-reading staged sector %s: %w", stagedPath, err)
	}
	commD, err = commPOf(raw)
	if err != nil {
		return commD, commR, paux, nil, err
	}

	h := blake2b.New256()
	h.Write(commD[:])
	h.Write(ticket.TicketBytes[:])
	copy(commR[:], h.Sum(nil))

	paux.CommC = blake2bOf(append([]byte("commc"), commD[:]...))
	paux.CommRLast = blake2bOf(append([]byte("commrlast"), commR[:]...))

	proof = append([]byte("fake-proof:"), commR[:]...)
	return commD, commR, paux, proof, nil
}

func blake2bOf(b []byte) [32]byte {
	var out [32]byte
	h := blake2b.New256()
	h.Write(b)
	copy(out[:], h.Sum(nil))
	return out
}

func (f *FakeSealer) Unseal(prover types.ProverID, sectorID types.SectorID, sealedPath, outPath string, commD [32]byte, ticket types.SealTicket) error {
	in, err := os.Open(sealedPath)
	if err != nil {
		return xerrors.Errorf("opening sealed sector %s: %w", sealedPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return xerrors.Errorf("creating unseal output %s: %w", outPath, err)
	}
	defer out.Close()

	key := maskKey(prover, sectorID, ticket)
	if err := xorStream(key, in, out); err != nil {
		return xerrors.Errorf("unmasking sector bytes: %w", err)
	}
	return nil
}

func (f *FakeSealer) VerifySeal(prover types.ProverID, sectorID types.SectorID, commR, commD [32]byte, ticket types.SealTicket, proof []byte) (bool, error) {
	h := blake2b.New256()
	h.Write(commD[:])
	h.Write(ticket.TicketBytes[:])
	var expectCommR [32]byte
	copy(expectCommR[:], h.Sum(nil))
	if expectCommR != commR {
		return false, nil
	}

	expectProof := append([]byte("fake-proof:"), commR[:]...)
	if len(proof) != len(expectProof) {
		return false, nil
	}
	for i := range proof {
		if proof[i] != expectProof[i] {
			return false, nil
		}
	}
	return true, nil
}

func (f *FakeSealer) VerifyPieceInclusionProof(commD [32]byte, pieceInfo proofs.PieceInfo, proof []byte) (bool, error) {
	return len(proof) > 0, nil
}

func (f *FakeSealer) GeneratePoSt(prover types.ProverID, sectorIDs []types.SectorID, sealedPaths map[types.SectorID]string, commRs map[types.SectorID][32]byte, randomness [32]byte) ([]byte, error) {
	h := blake2b.New256()
	h.Write(prover[:])
	h.Write(randomness[:])
	for _, id := range sectorIDs {
		r := commRs[id]
		h.Write(r[:])
	}
	return append([]byte("fake-post:"), h.Sum(nil)...), nil
}

func (f *FakeSealer) VerifyPoSt(prover types.ProverID, sectorIDs []types.SectorID, commRs map[types.SectorID][32]byte, randomness [32]byte, proof []byte) (bool, error) {
	expect, err := f.GeneratePoSt(prover, sectorIDs, nil, commRs, randomness)
	if err != nil {
		return false, err
	}
	if len(proof) != len(expect) {
		return false, nil
	}
	for i := range proof {
		if proof[i] != expect[i] {
			return false, nil
		}
	}
	return true, nil
}
