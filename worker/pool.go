// Package worker runs a fixed-size pool of goroutines that drain a job
// queue bounded by queueDepth, each job a Seal, Unseal, or PoSt generation
// request dispatched to a proofs.Sealer. Grounded on the concurrency
// shape of chwjbn-lotus's sealing pipeline (decoupling the thing that
// decides what to seal from the thing that seals it) generalized into
// an explicit worker-count pool instead of one goroutine per sector.
package worker

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/google/uuid"

	"github.com/filecoin-project/go-sectorbuilder/proofs"
)

var log = logging.Logger("worker")

// Pool runs numWorkers goroutines, each pulling Jobs off a shared
// queue and executing them against a proofs.Sealer. Replies are
// delivered on the ReplyCh supplied on construction, shared across all
// workers so a single scheduler select loop can read from one place.
type Pool struct {
	sealer  proofs.Sealer
	jobs    chan Job
	replyCh chan Reply

	wg sync.WaitGroup

	cancel context.CancelFunc
}

// New starts a Pool with numWorkers goroutines. replyCh must be
// buffered deeply enough (or drained fast enough) that workers are
// never blocked handing back a completed job; the scheduler owns that
// channel and reads from it continuously.
func New(ctx context.Context, sealer proofs.Sealer, numWorkers int, queueDepth int, replyCh chan Reply) *Pool {
	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		sealer:  sealer,
		jobs:    make(chan Job, queueDepth),
		replyCh: replyCh,
		cancel:  cancel,
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	return p
}

// Submit enqueues a job. It blocks if the queue is at capacity.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Shutdown cancels the pool's context and closes the job queue: each
// worker exits after finishing its current job, and jobs still queued
// are not run. It blocks until every worker goroutine returns.
func (p *Pool) Shutdown() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerIdx int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reply := p.execute(job)
		p.replyCh <- reply
	}
}

func (p *Pool) execute(job Job) Reply {
	switch job.Kind {
	case TaskSeal:
		commD, commR, paux, proof, err := p.sealer.Seal(job.Prover, job.SectorID, job.Ticket, job.StagedPath, job.SealedPath, job.Pieces)
		if err != nil {
			log.Errorw("seal failed", "sector", job.SectorID, "err", err)
		}
		return Reply{
			CallID:   job.CallID,
			Kind:     job.Kind,
			SectorID: job.SectorID,
			Seal:     &SealResult{CommD: commD, CommR: commR, PAux: paux, Proof: proof, Err: err},
		}

	case TaskUnseal:
		err := p.sealer.Unseal(job.Prover, job.SectorID, job.SealedPath, job.OutPath, job.CommD, job.Ticket)
		if err != nil {
			log.Errorw("unseal failed", "sector", job.SectorID, "err", err)
		}
		return Reply{
			CallID:   job.CallID,
			Kind:     job.Kind,
			SectorID: job.SectorID,
			Unseal:   &UnsealResult{Err: err},
		}

	case TaskGeneratePoSt:
		proof, err := p.sealer.GeneratePoSt(job.Prover, job.SectorIDs, job.SealedPaths, job.CommRs, job.Randomness)
		if err != nil {
			log.Errorw("post generation failed", "err", err)
		}
		return Reply{
			CallID: job.CallID,
			Kind:   job.Kind,
			PoSt:   &PoStResult{Proof: proof, Err: err},
		}
	}

	panic("unknown job kind")
}

// NewCallID generates the identifier used to correlate a submitted
// Job with its eventual Reply.
func NewCallID() uuid.UUID {
	return uuid.New()
}
