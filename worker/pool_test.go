package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-sectorbuilder/internal/testutil"
	"github.com/filecoin-project/go-sectorbuilder/types"
)

func TestPool_SealAndUnseal(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	sealed := filepath.Join(dir, "sealed")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(staged, []byte("piece-bytes-here"), 0644))

	replyCh := make(chan Reply, 4)
	pool := New(context.Background(), &testutil.FakeSealer{}, 2, 4, replyCh)
	defer pool.Shutdown()

	var prover types.ProverID
	ticket := types.SealTicket{TicketBytes: [32]byte{1}}

	sealCall := NewCallID()
	pool.Submit(Job{
		CallID:     sealCall,
		Kind:       TaskSeal,
		Prover:     prover,
		SectorID:   1,
		Ticket:     ticket,
		StagedPath: staged,
		SealedPath: sealed,
	})

	reply := <-replyCh
	require.Equal(t, sealCall, reply.CallID)
	require.NotNil(t, reply.Seal)
	require.NoError(t, reply.Seal.Err)

	unsealCall := NewCallID()
	pool.Submit(Job{
		CallID:     unsealCall,
		Kind:       TaskUnseal,
		Prover:     prover,
		SectorID:   1,
		Ticket:     ticket,
		SealedPath: sealed,
		OutPath:    out,
		CommD:      reply.Seal.CommD,
	})

	reply2 := <-replyCh
	require.Equal(t, unsealCall, reply2.CallID)
	require.NotNil(t, reply2.Unseal)
	require.NoError(t, reply2.Unseal.Err)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "piece-bytes-here", string(b))
}
