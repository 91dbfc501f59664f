package scheduler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-sectorbuilder/internal/testutil"
	"github.com/filecoin-project/go-sectorbuilder/worker"
)

func newTestScheduler(t *testing.T) (*Scheduler, *worker.Pool) {
	t.Helper()
	mm := newTestManager(t)

	replyCh := make(chan worker.Reply, 16)
	pool := worker.New(context.Background(), &testutil.FakeSealer{}, 2, 16, replyCh)
	sched := New(mm, pool, replyCh, t.TempDir())

	go sched.Run(context.Background())

	return sched, pool
}

func submit(t *testing.T, s *Scheduler, task Task) Reply {
	t.Helper()
	replyCh := make(chan Reply, 1)
	task.ReplyCh = replyCh
	s.Submit(task)

	select {
	case r := <-replyCh:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scheduler reply")
		return Reply{}
	}
}

func TestScheduler_AddPieceAndSealAll(t *testing.T) {
	sched, pool := newTestScheduler(t)
	defer pool.Shutdown()

	r := submit(t, sched, Task{Kind: TaskAddPiece, PieceKey: "a", NumBytes: 127, Reader: bytes.NewReader(make([]byte, 127))})
	require.NoError(t, r.Err)
	require.EqualValues(t, 1, r.SectorID)

	sealAll := submit(t, sched, Task{Kind: TaskSealAll, ForceAll: true})
	require.NoError(t, sealAll.Err)
	require.Len(t, sealAll.SectorIDs, 1)

	require.Eventually(t, func() bool {
		status := submit(t, sched, Task{Kind: TaskGetSealStatus, SectorID: r.SectorID})
		return status.Err == nil && status.SealStatus.Kind.String() == "Sealed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestScheduler_ReadPieceAfterSeal(t *testing.T) {
	sched, pool := newTestScheduler(t)
	defer pool.Shutdown()

	payload := []byte("the quick brown fox jumps over the lazy dog!!!!")
	r := submit(t, sched, Task{Kind: TaskAddPiece, PieceKey: "k", NumBytes: 47, Reader: bytes.NewReader(payload)})
	require.NoError(t, r.Err)

	sealAll := submit(t, sched, Task{Kind: TaskSealAll, ForceAll: true})
	require.NoError(t, sealAll.Err)

	require.Eventually(t, func() bool {
		status := submit(t, sched, Task{Kind: TaskGetSealStatus, SectorID: r.SectorID})
		return status.Err == nil && status.SealStatus.Kind.String() == "Sealed"
	}, 5*time.Second, 20*time.Millisecond)

	read := submit(t, sched, Task{Kind: TaskReadPiece, PieceKey: "k"})
	require.NoError(t, read.Err)
	require.Equal(t, payload, read.Bytes)
}
