// Package scheduler owns every mutation of sector state. A single
// goroutine selects between a rendezvous request channel (callers
// block until accepted) and the worker pool's reply channel, so
// State never needs locking. Grounded on lotus's plain
// goroutine + select idiom (e.g. dagstore.Wrapper.traceLoop/gcLoop)
// generalized into the engine's own request/reply protocol.
package scheduler

import (
	"context"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/proofs"
	"github.com/filecoin-project/go-sectorbuilder/types"
	"github.com/filecoin-project/go-sectorbuilder/worker"
)

var log = logging.Logger("scheduler")

type pendingSeal struct {
	sectorID types.SectorID
	pieces   []proofs.PieceInfo
}

type pendingRead struct {
	task    Task
	outPath string
	offset  uint64
	length  uint64
}

// Scheduler is the single-threaded owner of a MetadataManager. All
// public methods are safe to call from any goroutine; the actual work
// happens on the goroutine started by Run.
type Scheduler struct {
	mm   *MetadataManager
	pool *worker.Pool

	reqCh       chan Task
	workerReply chan worker.Reply

	pendingSeals map[interface{}]pendingSeal
	pendingReads map[interface{}]pendingRead

	scratchDir string

	done chan struct{}
}

// New constructs a Scheduler. Run must be called to start its
// goroutine before any task is submitted.
func New(mm *MetadataManager, pool *worker.Pool, workerReply chan worker.Reply, scratchDir string) *Scheduler {
	return &Scheduler{
		mm:           mm,
		pool:         pool,
		reqCh:        make(chan Task),
		workerReply:  workerReply,
		pendingSeals: make(map[interface{}]pendingSeal),
		pendingReads: make(map[interface{}]pendingRead),
		scratchDir:   scratchDir,
		done:         make(chan struct{}),
	}
}

// Submit sends a task on the rendezvous request channel, blocking
// until the scheduler goroutine accepts it.
func (s *Scheduler) Submit(task Task) {
	s.reqCh <- task
}

// Run is the scheduler's select loop. It returns once Shutdown has
// been processed.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case task := <-s.reqCh:
			if task.Kind == TaskShutdown {
				task.ReplyCh <- Reply{}
				return
			}
			s.handleTask(ctx, task)

		case reply := <-s.workerReply:
			s.handleWorkerReply(ctx, reply)
		}
	}
}

// Wait blocks until Run has returned.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) handleTask(ctx context.Context, task Task) {
	switch task.Kind {
	case TaskAddPiece:
		sectorID, err := s.mm.AddPiece(ctx, task.PieceKey, task.NumBytes, task.Reader, task.StoreUntil)
		if err != nil {
			task.ReplyCh <- Reply{Err: err}
			return
		}
		if derr := s.dispatchReadySeals(ctx, false); derr != nil {
			task.ReplyCh <- Reply{Err: derr}
			return
		}
		task.ReplyCh <- Reply{SectorID: sectorID}

	case TaskSealAll:
		ids, err := s.dispatchReadySealsReturningIDs(ctx, true)
		if err != nil {
			task.ReplyCh <- Reply{Err: err}
			return
		}
		task.ReplyCh <- Reply{SectorIDs: ids}

	case TaskGetSealStatus:
		st, err := s.mm.GetSealStatus(task.SectorID)
		task.ReplyCh <- Reply{SealStatus: st, Err: err}

	case TaskGetSealedSectors:
		sectors := s.mm.GetSealedSectors(task.CheckHealth)
		task.ReplyCh <- Reply{SealedSectors: sectors}

	case TaskGetStagedSectors:
		sectors := s.mm.GetStagedSectors()
		task.ReplyCh <- Reply{StagedSectors: sectors}

	case TaskReadPiece:
		s.handleReadPiece(ctx, task)

	case TaskGeneratePoSt:
		proof, err := s.mm.GeneratePoSt(task.SectorIDs, task.Randomness)
		task.ReplyCh <- Reply{Proof: proof, Err: err}

	default:
		task.ReplyCh <- Reply{Err: xerrors.Errorf("unknown task kind %d", task.Kind)}
	}
}

// dispatchReadySeals marks eligible sectors ReadyForSealing and
// dispatches a seal job for each, discarding the id list.
func (s *Scheduler) dispatchReadySeals(ctx context.Context, forceAll bool) error {
	_, err := s.dispatchReadySealsReturningIDs(ctx, forceAll)
	return err
}

func (s *Scheduler) dispatchReadySealsReturningIDs(ctx context.Context, forceAll bool) ([]types.SectorID, error) {
	ready, err := s.mm.ReadyForSealing(ctx, forceAll)
	if err != nil {
		return nil, err
	}

	for _, id := range ready {
		if err := s.dispatchSeal(ctx, id); err != nil {
			return ready, err
		}
	}
	return ready, nil
}

func (s *Scheduler) dispatchSeal(ctx context.Context, sectorID types.SectorID) error {
	job, err := s.mm.BuildSealJob(ctx, sectorID)
	if err != nil {
		return err
	}

	s.pendingSeals[job.CallID] = pendingSeal{sectorID: sectorID, pieces: job.Pieces}
	s.pool.Submit(job)
	return nil
}

func (s *Scheduler) handleReadPiece(ctx context.Context, task Task) {
	sectorID, sealedPath, commD, ticket, offset, length, err := s.mm.LocatePieceForRead(ctx, task.PieceKey)
	if err != nil {
		task.ReplyCh <- Reply{Err: err}
		return
	}

	out, err := os.CreateTemp(s.scratchDir, "unseal-*")
	if err != nil {
		task.ReplyCh <- Reply{Err: types.NewReceiverError(xerrors.Errorf("creating unseal scratch file: %w", err))}
		return
	}
	outPath := out.Name()
	out.Close()

	job := worker.Job{
		CallID:     worker.NewCallID(),
		Kind:       worker.TaskUnseal,
		Prover:     s.mm.prover,
		SectorID:   sectorID,
		Ticket:     ticket,
		SealedPath: sealedPath,
		OutPath:    outPath,
		CommD:      commD,
	}

	s.pendingReads[job.CallID] = pendingRead{task: task, outPath: outPath, offset: offset, length: length}
	s.pool.Submit(job)
}

func (s *Scheduler) handleWorkerReply(ctx context.Context, reply worker.Reply) {
	switch reply.Kind {
	case worker.TaskSeal:
		pending, ok := s.pendingSeals[reply.CallID]
		if !ok {
			log.Errorw("seal reply for unknown call id", "call-id", reply.CallID)
			return
		}
		delete(s.pendingSeals, reply.CallID)

		if reply.Seal.Err != nil {
			if err := s.mm.MarkFailed(ctx, pending.sectorID, reply.Seal.Err.Error()); err != nil {
				log.Errorw("failed to persist seal failure", "sector", pending.sectorID, "err", err)
			}
			return
		}

		if err := s.mm.MarkSealed(ctx, pending.sectorID, *reply.Seal, pending.pieces); err != nil {
			log.Errorw("failed to persist seal success", "sector", pending.sectorID, "err", err)
		}

	case worker.TaskUnseal:
		pending, ok := s.pendingReads[reply.CallID]
		if !ok {
			log.Errorw("unseal reply for unknown call id", "call-id", reply.CallID)
			return
		}
		delete(s.pendingReads, reply.CallID)

		defer os.Remove(pending.outPath)

		if reply.Unseal.Err != nil {
			pending.task.ReplyCh <- Reply{Err: reply.Unseal.Err}
			return
		}

		b, err := os.ReadFile(pending.outPath)
		if err != nil {
			pending.task.ReplyCh <- Reply{Err: types.NewReceiverError(xerrors.Errorf("reading unseal output: %w", err))}
			return
		}
		end := pending.offset + pending.length
		if end > uint64(len(b)) {
			end = uint64(len(b))
		}
		if pending.offset > uint64(len(b)) {
			pending.task.ReplyCh <- Reply{Err: types.NewReceiverError(xerrors.Errorf("unseal output shorter than expected piece range"))}
			return
		}
		pending.task.ReplyCh <- Reply{Bytes: b[pending.offset:end]}
	}
}

// Shutdown sends a Shutdown task to the scheduler, waits for it to
// accept, then shuts down the worker pool and joins every goroutine.
func Shutdown(ctx context.Context, s *Scheduler, pool *worker.Pool) error {
	g, _ := errgroup.WithContext(ctx)

	replyCh := make(chan Reply, 1)
	s.Submit(Task{Kind: TaskShutdown, ReplyCh: replyCh})
	<-replyCh

	g.Go(func() error {
		s.Wait()
		return nil
	})
	g.Go(func() error {
		pool.Shutdown()
		return nil
	})

	return g.Wait()
}
