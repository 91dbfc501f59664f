package sectorstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-state-types/abi"
	blake2b "github.com/minio/blake2b-simd"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

var log = logging.Logger("sectorstore")

// LocalSectorStore lays out staged and sealed sector files under two
// sibling directories on the local filesystem, the way chwjbn-lotus's
// sector-storage package partitions "unsealed"/"sealed"/"cache" data.
// No other files live in either directory.
type LocalSectorStore struct {
	stagedDir string
	sealedDir string
	sectorSize abi.SectorSize
}

var _ Store = (*LocalSectorStore)(nil)

// NewLocalSectorStore creates (if necessary) the staged/sealed
// directories under root and returns a Store backed by them.
func NewLocalSectorStore(root string, sectorSize abi.SectorSize) (*LocalSectorStore, error) {
	staged := filepath.Join(root, "staged")
	sealed := filepath.Join(root, "sealed")

	for _, d := range []string{staged, sealed} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, xerrors.Errorf("creating sector directory %s: %w", d, err)
		}
	}

	return &LocalSectorStore{stagedDir: staged, sealedDir: sealed, sectorSize: sectorSize}, nil
}

func accessName(prover types.ProverID, sectorID types.SectorID, suffix string) string {
	if suffix != "" {
		return fmt.Sprintf("s-%s-%d-%s", hex.EncodeToString(prover[:4]), sectorID, suffix)
	}
	return fmt.Sprintf("s-%s-%d", hex.EncodeToString(prover[:4]), sectorID)
}

func (l *LocalSectorStore) NewStagingAccess(prover types.ProverID, sectorID types.SectorID, forUnseal bool) (string, error) {
	suffix := ""
	if forUnseal {
		suffix = "unseal"
	}
	return accessName(prover, sectorID, suffix), nil
}

func (l *LocalSectorStore) NewSealedAccess(prover types.ProverID, sectorID types.SectorID) (string, error) {
	return accessName(prover, sectorID, ""), nil
}

func (l *LocalSectorStore) StagedPath(prover types.ProverID, access string) string {
	return filepath.Join(l.stagedDir, access)
}

func (l *LocalSectorStore) SealedPath(prover types.ProverID, access string) string {
	return filepath.Join(l.sealedDir, access)
}

func (l *LocalSectorStore) OpenAppend(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, xerrors.Errorf("opening %s for append: %w", path, err)
	}
	return f, nil
}

func (l *LocalSectorStore) OpenRead(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening %s for read: %w", path, err)
	}
	return f, nil
}

func (l *LocalSectorStore) ReadRaw(prover types.ProverID, path string, offset, length uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening %s for raw read: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, xerrors.Errorf("reading %s at offset %d: %w", path, offset, err)
	}
	return buf[:n], nil
}

func (l *LocalSectorStore) MaxUnsealedBytesPerSector() abi.UnpaddedPieceSize {
	return abi.PaddedPieceSize(l.sectorSize).Unpadded()
}

func (l *LocalSectorStore) Checksum(path string) ([32]byte, error) {
	var out [32]byte

	f, err := os.Open(path)
	if err != nil {
		return out, xerrors.Errorf("opening %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := blake2b.New256()
	if _, err := io.Copy(h, f); err != nil {
		return out, xerrors.Errorf("hashing %s: %w", path, err)
	}

	copy(out[:], h.Sum(nil))
	return out, nil
}

func (l *LocalSectorStore) StatLen(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, xerrors.Errorf("%s: %w", path, os.ErrNotExist)
		}
		return 0, xerrors.Errorf("statting %s: %w", path, err)
	}
	return uint64(fi.Size()), nil
}
