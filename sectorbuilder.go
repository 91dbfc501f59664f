// Package sectorbuilder implements a worker-facing sector lifecycle
// manager: it accepts pieces of unsealed data, packs them into
// sectors, seals sectors on a worker pool, and serves reads back out
// of sealed sectors. Grounded on the rendezvous-then-block shape of
// original_source/sector-builder/src/builder.rs's SectorBuilder and
// IPFSMain-Official-storage-fsm/sealing.go's method naming for the
// equivalent calls.
package sectorbuilder

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-sectorbuilder/config"
	"github.com/filecoin-project/go-sectorbuilder/kvstore"
	"github.com/filecoin-project/go-sectorbuilder/piecedir"
	"github.com/filecoin-project/go-sectorbuilder/proofs"
	"github.com/filecoin-project/go-sectorbuilder/scheduler"
	"github.com/filecoin-project/go-sectorbuilder/sectorstore"
	"github.com/filecoin-project/go-sectorbuilder/types"
	"github.com/filecoin-project/go-sectorbuilder/worker"
)

var log = logging.Logger("sectorbuilder")

// Builder is the public handle onto a running engine. Every method
// sends a task to the scheduler's goroutine and blocks on a one-shot
// reply, so Builder itself is safe for concurrent use from many
// goroutines.
type Builder struct {
	sched *scheduler.Scheduler
	pool  *worker.Pool

	kv    kvstore.Store
	index *piecedir.Index

	workerReply chan worker.Reply
}

// New wires a complete engine from cfg: opens the KV snapshot store,
// local sector store, and piece location index, starts a worker pool of cfg.Worker.NumWorkers workers bound
// to sealer, loads (or initializes) persisted State, and starts the
// scheduler goroutine. ticketSource supplies entropy for each seal;
// pass scheduler.RandomTicketSource() absent real chain access. New
// does not check that proof parameter files are present.
func New(ctx context.Context, cfg *config.Config, prover types.ProverID, sealer proofs.Sealer, ticketSource func() (types.SealTicket, error)) (*Builder, error) {
	kv, err := kvstore.Open(cfg.Storage.MetadataDir)
	if err != nil {
		return nil, xerrors.Errorf("opening metadata store: %w", err)
	}

	store, err := sectorstore.NewLocalSectorStore(cfg.Storage.SectorStoreRoot, cfg.Sealing.SectorSize)
	if err != nil {
		kv.Close()
		return nil, xerrors.Errorf("opening local sector store: %w", err)
	}

	index, err := piecedir.Open(cfg.Storage.PieceDirPath)
	if err != nil {
		kv.Close()
		return nil, xerrors.Errorf("opening piece location index: %w", err)
	}

	mm, err := scheduler.NewMetadataManager(ctx, kv, store, index, sealer, prover, cfg.Sealing.SectorSize, cfg.Sealing.MaxNumStagedSectors, ticketSource)
	if err != nil {
		kv.Close()
		index.Close()
		return nil, xerrors.Errorf("initializing metadata manager: %w", err)
	}

	workerReply := make(chan worker.Reply, cfg.Worker.QueueDepth)
	pool := worker.New(ctx, sealer, cfg.Worker.NumWorkers, cfg.Worker.QueueDepth, workerReply)

	sched := scheduler.New(mm, pool, workerReply, cfg.Storage.ScratchDir)
	go sched.Run(ctx)

	return &Builder{
		sched:       sched,
		pool:        pool,
		kv:          kv,
		index:       index,
		workerReply: workerReply,
	}, nil
}

func (b *Builder) call(task scheduler.Task) scheduler.Reply {
	replyCh := make(chan scheduler.Reply, 1)
	task.ReplyCh = replyCh
	b.sched.Submit(task)
	return <-replyCh
}

// AddPiece ingests numBytes of piece data from r under pieceKey,
// packing it into an existing or newly created staged sector and
// dispatching any sector that becomes eligible for sealing as a
// result. It returns the sector the piece landed in.
func (b *Builder) AddPiece(ctx context.Context, pieceKey string, numBytes abi.UnpaddedPieceSize, r io.Reader, storeUntil int64) (types.SectorID, error) {
	reply := b.call(scheduler.Task{
		Kind:       scheduler.TaskAddPiece,
		PieceKey:   pieceKey,
		NumBytes:   numBytes,
		Reader:     r,
		StoreUntil: storeUntil,
	})
	return reply.SectorID, reply.Err
}

// GetSealStatus reports sectorID's current position in the seal state
// machine.
func (b *Builder) GetSealStatus(sectorID types.SectorID) (types.SealStatus, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskGetSealStatus, SectorID: sectorID})
	return reply.SealStatus, reply.Err
}

// GetStagedSectors returns every sector that has not yet been sealed.
func (b *Builder) GetStagedSectors() ([]types.StagedSectorMetadata, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskGetStagedSectors})
	return reply.StagedSectors, reply.Err
}

// GetSealedSectors returns every sealed sector, optionally validating
// each one's on-disk bytes against its recorded length and checksum.
func (b *Builder) GetSealedSectors(checkHealth bool) ([]types.SealedSectorHealth, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskGetSealedSectors, CheckHealth: checkHealth})
	return reply.SealedSectors, reply.Err
}

// SealAllStagedSectors forces every staged sector still in
// AcceptingData into the seal pipeline, whether or not it is full, and
// returns the ids it dispatched.
func (b *Builder) SealAllStagedSectors(ctx context.Context) ([]types.SectorID, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskSealAll, ForceAll: true})
	return reply.SectorIDs, reply.Err
}

// ReadPieceFromSealedSector unseals and returns the bytes of pieceKey
// from whichever sealed sector holds it.
func (b *Builder) ReadPieceFromSealedSector(ctx context.Context, pieceKey string) ([]byte, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskReadPiece, PieceKey: pieceKey})
	return reply.Bytes, reply.Err
}

// GeneratePoSt produces a proof of space-time over sectorIDs using
// randomness as the seed. Every id must already be sealed.
func (b *Builder) GeneratePoSt(ctx context.Context, sectorIDs []types.SectorID, randomness [32]byte) ([]byte, error) {
	reply := b.call(scheduler.Task{Kind: scheduler.TaskGeneratePoSt, SectorIDs: sectorIDs, Randomness: randomness})
	return reply.Proof, reply.Err
}

// Stop drains the scheduler and worker pool, then releases the
// underlying metadata store and piece index. Builder must not be used
// after Stop returns.
// Stop drains the scheduler and worker pool, then closes the piece
// index and metadata store. Both closes are attempted even if one
// fails, and their errors are combined rather than the second
// silently shadowing the first.
func (b *Builder) Stop(ctx context.Context) error {
	if err := scheduler.Shutdown(ctx, b.sched, b.pool); err != nil {
		return xerrors.Errorf("shutting down scheduler: %w", err)
	}

	var result *multierror.Error
	if err := b.index.Close(); err != nil {
		result = multierror.Append(result, xerrors.Errorf("closing piece index: %w", err))
	}
	if err := b.kv.Close(); err != nil {
		result = multierror.Append(result, xerrors.Errorf("closing metadata store: %w", err))
	}
	return result.ErrorOrNil()
}
