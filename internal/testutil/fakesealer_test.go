package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

func TestFakeSealer_SealUnsealRoundTrip(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	sealed := filepath.Join(dir, "sealed")
	unsealed := filepath.Join(dir, "unsealed")

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(staged, payload, 0644))

	sealer := &FakeSealer{}
	var prover types.ProverID
	ticket := types.SealTicket{BlockHeight: 1, TicketBytes: [32]byte{1, 2, 3}}

	commD, commR, _, proof, err := sealer.Seal(prover, 1, ticket, staged, sealed, nil)
	require.NoError(t, err)
	require.NotEqual(t, commD, commR)

	ok, err := sealer.VerifySeal(prover, 1, commR, commD, ticket, proof)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sealer.Unseal(prover, 1, sealed, unsealed, commD, ticket))

	out, err := os.ReadFile(unsealed)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestFakeSealer_PoStRoundTrip(t *testing.T) {
	sealer := &FakeSealer{}
	var prover types.ProverID
	randomness := [32]byte{9, 9, 9}
	ids := []types.SectorID{1, 2}
	commRs := map[types.SectorID][32]byte{1: {1}, 2: {2}}

	proof, err := sealer.GeneratePoSt(prover, ids, nil, commRs, randomness)
	require.NoError(t, err)

	ok, err := sealer.VerifyPoSt(prover, ids, commRs, randomness, proof)
	require.NoError(t, err)
	require.True(t, ok)
}
