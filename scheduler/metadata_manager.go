package scheduler

import (
	"context"
	"io"

	"github.com/filecoin-project/go-bitfield"
	storedcounter "github.com/filecoin-project/go-storedcounter"
	"github.com/filecoin-project/go-state-types/abi"
	ds "github.com/ipfs/go-datastore"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/internal/packer"
	"github.com/filecoin-project/go-sectorbuilder/kvstore"
	"github.com/filecoin-project/go-sectorbuilder/piecedir"
	"github.com/filecoin-project/go-sectorbuilder/proofs"
	"github.com/filecoin-project/go-sectorbuilder/sectorstore"
	"github.com/filecoin-project/go-sectorbuilder/types"
	"github.com/filecoin-project/go-sectorbuilder/worker"
)

// MetadataManager is the scheduler's private data plane: it combines
// in-memory State with the durable KV store, on-disk SectorStore, and
// the piece location index, and exposes every state-mutating
// operation the scheduler invokes. It has no concurrency of its own —
// the scheduler goroutine is its sole caller.
type MetadataManager struct {
	state       *types.State
	kv          kvstore.Store
	snapshotKey ds.Key
	store       sectorstore.Store
	index       *piecedir.Index
	sealer      proofs.Sealer
	counter     *storedcounter.StoredCounter

	prover       types.ProverID
	ticketSource func() (types.SealTicket, error)

	maxUserBytesPerStagedSector abi.UnpaddedPieceSize
	maxNumStagedSectors         int
}

// NewMetadataManager loads the last persisted snapshot for
// (prover, sectorSize) (or starts from an empty State if none exists)
// and rebuilds the piece index from it. ticketSource supplies the
// chain-derived entropy bound into each seal; the engine has no chain
// access of its own, so the caller is responsible for this (tests use
// a deterministic stub).
func NewMetadataManager(ctx context.Context, kv kvstore.Store, store sectorstore.Store, index *piecedir.Index, sealer proofs.Sealer, prover types.ProverID, sectorSize abi.SectorSize, maxNumStagedSectors int, ticketSource func() (types.SealTicket, error)) (*MetadataManager, error) {
	snapshotKey := kvstore.SnapshotKey(prover, sectorSize)

	state, err := loadOrInitState(ctx, kv, snapshotKey)
	if err != nil {
		return nil, err
	}

	if err := index.Rebuild(ctx, state); err != nil {
		return nil, xerrors.Errorf("rebuilding piece index: %w", err)
	}

	counter := storedcounter.New(kv.Batching(), kvstore.NextSectorIDKey(prover, sectorSize))

	return &MetadataManager{
		state:                       state,
		kv:                          kv,
		snapshotKey:                 snapshotKey,
		store:                       store,
		index:                       index,
		sealer:                      sealer,
		counter:                     counter,
		prover:                      prover,
		ticketSource:                ticketSource,
		maxUserBytesPerStagedSector: store.MaxUnsealedBytesPerSector(),
		maxNumStagedSectors:         maxNumStagedSectors,
	}, nil
}

func loadOrInitState(ctx context.Context, kv kvstore.Store, snapshotKey ds.Key) (*types.State, error) {
	ok, err := kv.Has(ctx, snapshotKey)
	if err != nil {
		return nil, xerrors.Errorf("checking for existing snapshot: %w", err)
	}
	if !ok {
		return types.NewState(0), nil
	}

	b, err := kv.Get(ctx, snapshotKey)
	if err != nil {
		return nil, xerrors.Errorf("loading snapshot: %w", err)
	}

	state, err := types.UnmarshalState(b)
	if err != nil {
		return nil, xerrors.Errorf("decoding snapshot: %w", err)
	}
	return state, nil
}

func (m *MetadataManager) snapshot(ctx context.Context) error {
	b, err := types.MarshalState(m.state)
	if err != nil {
		log.Errorw("marshaling snapshot failed", "key", m.snapshotKey, "err", err)
		return types.NewUnrecoverableError(xerrors.Errorf("marshaling snapshot: %w", err))
	}
	if err := m.kv.Put(ctx, m.snapshotKey, b); err != nil {
		log.Errorw("persisting snapshot failed", "key", m.snapshotKey, "err", err)
		return types.NewUnrecoverableError(xerrors.Errorf("persisting snapshot: %w", err))
	}
	return nil
}

// AddPiece validates, packs, streams, and commits a new piece,
// snapshotting before returning the sector it landed in.
func (m *MetadataManager) AddPiece(ctx context.Context, pieceKey string, numBytes abi.UnpaddedPieceSize, r io.Reader, storeUntil int64) (types.SectorID, error) {
	if numBytes > m.maxUserBytesPerStagedSector {
		return 0, types.NewCallerError(xerrors.Errorf("piece of %d bytes exceeds max_unsealed_bytes_per_sector (%d)", numBytes, m.maxUserBytesPerStagedSector))
	}

	next, err := m.counter.Next()
	if err != nil {
		return 0, types.NewReceiverError(xerrors.Errorf("allocating next sector id: %w", err))
	}
	// The counter yields 0 on its first call; sector ids start at 1.
	newID := types.SectorID(next + 1)

	s, created, err := packer.ChooseSectorForPiece(m.state, numBytes, m.maxUserBytesPerStagedSector, m.maxNumStagedSectors, newID)
	if err != nil {
		return 0, err
	}
	if created {
		access, err := m.store.NewStagingAccess(m.prover, newID, false)
		if err != nil {
			return 0, types.NewReceiverError(xerrors.Errorf("allocating staging access: %w", err))
		}
		s.SectorAccess = access
		m.state.LastCommittedSectorID = newID
	}

	path := m.store.StagedPath(m.prover, s.SectorAccess)

	currentLen, err := m.store.StatLen(path)
	if err != nil {
		currentLen = 0
	}
	offset := packer.AlignOffset(packer.SectorEndOffset(s.Pieces), numBytes)

	w, err := m.store.OpenAppend(path)
	if err != nil {
		return 0, types.NewReceiverError(xerrors.Errorf("opening staged file %s: %w", path, err))
	}
	defer w.Close()

	if pad := int64(offset) - int64(currentLen); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return 0, types.NewReceiverError(xerrors.Errorf("padding staged file %s: %w", path, err))
		}
	}

	n, err := io.Copy(w, io.LimitReader(r, int64(numBytes)))
	if err != nil {
		return 0, types.NewReceiverError(xerrors.Errorf("writing piece %s: %w", pieceKey, err))
	}
	if uint64(n) != uint64(numBytes) {
		return 0, types.NewReceiverError(xerrors.Errorf("short write for piece %s: wrote %d of %d bytes", pieceKey, n, numBytes))
	}

	s.Pieces = append(s.Pieces, types.PieceMetadata{
		PieceKey:   pieceKey,
		NumBytes:   numBytes,
		StoreUntil: storeUntil,
	})

	if err := m.snapshot(ctx); err != nil {
		return 0, err
	}

	return s.SectorID, nil
}

// ReadyForSealing marks every eligible staged sector ReadyForSealing
// (forceAll when the caller invoked seal-all) and returns their ids.
func (m *MetadataManager) ReadyForSealing(ctx context.Context, forceAll bool) ([]types.SectorID, error) {
	ready := packer.GetSectorsReadyForSealing(m.state, m.maxUserBytesPerStagedSector, m.maxNumStagedSectors, forceAll)
	if len(ready) > 0 {
		if err := m.snapshot(ctx); err != nil {
			return nil, err
		}
	}
	return ready, nil
}

// GetSealStatus looks up sectorID in staged then sealed state.
func (m *MetadataManager) GetSealStatus(sectorID types.SectorID) (types.SealStatus, error) {
	if s, ok := m.state.Staged[sectorID]; ok {
		return s.SealStatus, nil
	}
	if s, ok := m.state.Sealed[sectorID]; ok {
		return types.SealStatus{Kind: types.Sealed, SectorAccess: s.SectorAccess}, nil
	}
	return types.SealStatus{}, types.NewCallerError(xerrors.Errorf("unknown sector id %d", sectorID))
}

// GetStagedSectors returns a snapshot copy of every staged sector.
func (m *MetadataManager) GetStagedSectors() []types.StagedSectorMetadata {
	out := make([]types.StagedSectorMetadata, 0, len(m.state.Staged))
	for _, s := range m.state.Staged {
		out = append(out, *s)
	}
	return out
}

// GetSealedSectors returns every sealed sector, optionally computing
// each one's on-disk health. Health checks never mutate state.
func (m *MetadataManager) GetSealedSectors(checkHealth bool) []types.SealedSectorHealth {
	out := make([]types.SealedSectorHealth, 0, len(m.state.Sealed))
	for _, s := range m.state.Sealed {
		entry := types.SealedSectorHealth{Meta: *s}
		if checkHealth {
			h := m.checkHealth(s)
			entry.Health = &h
		}
		out = append(out, entry)
	}
	return out
}

func (m *MetadataManager) checkHealth(s *types.SealedSectorMetadata) types.HealthStatus {
	path := m.store.SealedPath(m.prover, s.SectorAccess)

	length, err := m.store.StatLen(path)
	if err != nil {
		return types.HealthMissing
	}
	if length != s.Len {
		return types.HealthInvalidLength
	}

	sum, err := m.store.Checksum(path)
	if err != nil {
		return types.HealthMissing
	}
	if sum != s.Blake2bChecksum {
		return types.HealthInvalidChecksum
	}

	return types.HealthOK
}

// BuildSealJob assembles a worker.Job to seal sectorID, computing
// each piece's commitment up front so it can be merged back onto the
// sector's metadata once sealing completes.
func (m *MetadataManager) BuildSealJob(ctx context.Context, sectorID types.SectorID) (worker.Job, error) {
	s, ok := m.state.Staged[sectorID]
	if !ok {
		return worker.Job{}, types.NewCallerError(xerrors.Errorf("unknown staged sector id %d", sectorID))
	}

	ticket, err := m.ticketSource()
	if err != nil {
		return worker.Job{}, xerrors.Errorf("obtaining seal ticket: %w", err)
	}

	stagedPath := m.store.StagedPath(m.prover, s.SectorAccess)
	sealedAccess, err := m.store.NewSealedAccess(m.prover, sectorID)
	if err != nil {
		return worker.Job{}, types.NewReceiverError(xerrors.Errorf("allocating sealed access: %w", err))
	}
	sealedPath := m.store.SealedPath(m.prover, sealedAccess)

	var pieces []proofs.PieceInfo
	var offset uint64
	for i, p := range s.Pieces {
		aligned := packer.AlignOffset(abi.UnpaddedPieceSize(offset), p.NumBytes)
		raw, err := m.store.ReadRaw(m.prover, stagedPath, uint64(aligned), uint64(p.NumBytes))
		if err != nil {
			return worker.Job{}, types.NewReceiverError(xerrors.Errorf("reading piece %d for commitment: %w", i, err))
		}
		commP, err := m.sealer.GeneratePieceCommitment(raw, p.NumBytes)
		if err != nil {
			return worker.Job{}, xerrors.Errorf("computing piece commitment: %w", err)
		}
		pieces = append(pieces, proofs.PieceInfo{NumBytes: p.NumBytes, CommP: commP})
		offset = uint64(aligned) + uint64(p.NumBytes)
	}

	s.SealStatus = types.SealStatus{Kind: types.Sealing, Ticket: &ticket}

	return worker.Job{
		CallID:     worker.NewCallID(),
		Kind:       worker.TaskSeal,
		Prover:     m.prover,
		SectorID:   sectorID,
		Ticket:     ticket,
		StagedPath: stagedPath,
		SealedPath: sealedPath,
		Pieces:     pieces,
	}, nil
}

// MarkSealed moves sectorID from staged to sealed, merging in the
// piece commitments computed when the seal job was built.
func (m *MetadataManager) MarkSealed(ctx context.Context, sectorID types.SectorID, result worker.SealResult, pieces []proofs.PieceInfo) error {
	s, ok := m.state.Staged[sectorID]
	if !ok {
		return types.NewUnrecoverableError(xerrors.Errorf("mark_sealed on unknown staged sector %d", sectorID))
	}

	sealedAccess, err := m.store.NewSealedAccess(m.prover, sectorID)
	if err != nil {
		return types.NewReceiverError(xerrors.Errorf("re-deriving sealed access: %w", err))
	}
	sealedPath := m.store.SealedPath(m.prover, sealedAccess)

	length, err := m.store.StatLen(sealedPath)
	if err != nil {
		return types.NewReceiverError(xerrors.Errorf("statting sealed file: %w", err))
	}
	checksum, err := m.store.Checksum(sealedPath)
	if err != nil {
		return types.NewReceiverError(xerrors.Errorf("checksumming sealed file: %w", err))
	}

	for i := range s.Pieces {
		if i < len(pieces) {
			commP := pieces[i].CommP
			s.Pieces[i].CommP = &commP
			s.Pieces[i].PieceInclusionProof = append(append([]byte{}, result.Proof...), byte(i))
		}
	}

	sealed := &types.SealedSectorMetadata{
		SectorID:        sectorID,
		SectorAccess:     sealedAccess,
		Pieces:           s.Pieces,
		CommD:            result.CommD,
		CommR:            result.CommR,
		PAux:             result.PAux,
		Proof:            result.Proof,
		Blake2bChecksum:  checksum,
		Len:              length,
		SealTicket:       *s.SealStatus.Ticket,
	}

	delete(m.state.Staged, sectorID)
	m.state.Sealed[sectorID] = sealed

	for _, p := range sealed.Pieces {
		if err := m.index.Put(ctx, p.PieceKey, piecedir.Location{SectorID: sectorID, Sealed: true, Access: sealedAccess}); err != nil {
			log.Warnw("failed to update piece index", "piece", p.PieceKey, "err", err)
		}
	}

	return m.snapshot(ctx)
}

// MarkFailed leaves sectorID in staged state with status Failed.
func (m *MetadataManager) MarkFailed(ctx context.Context, sectorID types.SectorID, reason string) error {
	s, ok := m.state.Staged[sectorID]
	if !ok {
		return types.NewUnrecoverableError(xerrors.Errorf("mark_failed on unknown staged sector %d", sectorID))
	}
	s.SealStatus = types.SealStatus{Kind: types.Failed, FailureReason: reason}
	return m.snapshot(ctx)
}

// LocatePieceForRead finds the sealed sector holding pieceKey and the
// byte range within it, so the scheduler can dispatch an unseal job
// for exactly that range.
func (m *MetadataManager) LocatePieceForRead(ctx context.Context, pieceKey string) (sectorID types.SectorID, sealedPath string, commD [32]byte, ticket types.SealTicket, offset uint64, length uint64, err error) {
	loc, lerr := m.index.Get(ctx, pieceKey)
	if lerr == nil && loc.Sealed {
		sectorID = loc.SectorID
	} else {
		sectorID, err = m.linearScanForPiece(pieceKey)
		if err != nil {
			return
		}
	}

	s, ok := m.state.Sealed[sectorID]
	if !ok {
		err = types.ErrPieceNotFound(pieceKey)
		return
	}

	var cur uint64
	found := false
	for _, p := range s.Pieces {
		aligned := packer.AlignOffset(abi.UnpaddedPieceSize(cur), p.NumBytes)
		if p.PieceKey == pieceKey {
			offset = uint64(aligned)
			length = uint64(p.NumBytes)
			found = true
			break
		}
		cur = uint64(aligned) + uint64(p.NumBytes)
	}
	if !found {
		err = types.ErrPieceNotFound(pieceKey)
		return
	}

	sealedPath = m.store.SealedPath(m.prover, s.SectorAccess)
	commD = s.CommD
	ticket = s.SealTicket
	return
}

func (m *MetadataManager) linearScanForPiece(pieceKey string) (types.SectorID, error) {
	for id, s := range m.state.Sealed {
		for _, p := range s.Pieces {
			if p.PieceKey == pieceKey {
				return id, nil
			}
		}
	}
	return 0, types.ErrPieceNotFound(pieceKey)
}

// GeneratePoSt delegates directly to the external proof backend; it
// does not touch State and runs synchronously on the scheduler
// goroutine since PoSt generation is rare and coarse-grained.
// sectorIDs is compacted through a bitfield first so a caller passing
// duplicate or unsorted ids still produces one proof input per
// distinct sector, in ascending order.
func (m *MetadataManager) GeneratePoSt(sectorIDs []types.SectorID, randomness [32]byte) ([]byte, error) {
	raw := make([]uint64, len(sectorIDs))
	for i, id := range sectorIDs {
		raw[i] = uint64(id)
	}
	bf, err := bitfield.NewFromSet(raw)
	if err != nil {
		return nil, xerrors.Errorf("compacting sector id set: %w", err)
	}

	var compacted []types.SectorID
	if err := bf.ForEach(func(id uint64) error {
		compacted = append(compacted, types.SectorID(id))
		return nil
	}); err != nil {
		return nil, xerrors.Errorf("iterating compacted sector id set: %w", err)
	}

	sealedPaths := make(map[types.SectorID]string, len(compacted))
	commRs := make(map[types.SectorID][32]byte, len(compacted))
	for _, id := range compacted {
		s, ok := m.state.Sealed[id]
		if !ok {
			return nil, types.NewCallerError(xerrors.Errorf("sector %d is not sealed", id))
		}
		sealedPaths[id] = m.store.SealedPath(m.prover, s.SectorAccess)
		commRs[id] = s.CommR
	}

	proof, err := m.sealer.GeneratePoSt(m.prover, compacted, sealedPaths, commRs, randomness)
	if err != nil {
		return nil, xerrors.Errorf("generating proof of spacetime: %w", err)
	}
	return proof, nil
}
