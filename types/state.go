package types

import (
	cbornode "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"
)

// stateEnvelopeVersion is bumped whenever the on-disk snapshot layout
// changes in a way that isn't purely additive. Load rejects snapshots
// with a newer major version than it understands.
const stateEnvelopeVersion = 1

// go-ipld-cbor's refmt encoder only handles struct types it has an atlas
// entry for, so every struct reachable from the envelope is registered.
func init() {
	for _, t := range []interface{}{
		stateEnvelope{},
		StagedSectorMetadata{},
		SealedSectorMetadata{},
		PieceMetadata{},
		SealStatus{},
		SealTicket{},
		PAux{},
	} {
		cbornode.RegisterCborType(t)
	}
}

// State is the in-memory record of every staged and sealed sector for
// one (prover_id, sector_size) pair, plus the highest sector id
// allocated so far (the actual allocator is a persisted counter kept
// alongside the snapshot; this field is a resume-time high-water mark
// for reporting). It is mutated only by the scheduler goroutine that
// owns a MetadataManager.
type State struct {
	Staged                map[SectorID]*StagedSectorMetadata
	Sealed                map[SectorID]*SealedSectorMetadata
	LastCommittedSectorID SectorID
}

// NewState returns an empty State seeded with the given last
// committed sector id (used on first run, before any snapshot
// exists).
func NewState(lastCommittedSectorID SectorID) *State {
	return &State{
		Staged:                make(map[SectorID]*StagedSectorMetadata),
		Sealed:                make(map[SectorID]*SealedSectorMetadata),
		LastCommittedSectorID: lastCommittedSectorID,
	}
}

// Clone performs a deep-enough copy of State for use in tests that
// want to assert load(save(state)) == state without aliasing maps.
func (s *State) Clone() *State {
	out := NewState(s.LastCommittedSectorID)
	for id, v := range s.Staged {
		cp := *v
		cp.Pieces = append([]PieceMetadata(nil), v.Pieces...)
		out.Staged[id] = &cp
	}
	for id, v := range s.Sealed {
		cp := *v
		cp.Pieces = append([]PieceMetadata(nil), v.Pieces...)
		out.Sealed[id] = &cp
	}
	return out
}

// stateEnvelope is the serialization-friendly shadow of State: plain
// slices instead of maps keyed by a non-string type, since the CBOR
// codec (go-ipld-cbor's refmt-based reflection encoder) round-trips
// slices/structs far more predictably than maps with integer keys.
type stateEnvelope struct {
	Version               int
	Staged                []StagedSectorMetadata
	Sealed                []SealedSectorMetadata
	LastCommittedSectorID uint64
}

func toEnvelope(s *State) *stateEnvelope {
	env := &stateEnvelope{
		Version:               stateEnvelopeVersion,
		LastCommittedSectorID: uint64(s.LastCommittedSectorID),
	}
	for _, v := range s.Staged {
		env.Staged = append(env.Staged, *v)
	}
	for _, v := range s.Sealed {
		env.Sealed = append(env.Sealed, *v)
	}
	return env
}

func fromEnvelope(env *stateEnvelope) (*State, error) {
	if env.Version > stateEnvelopeVersion {
		return nil, xerrors.Errorf("snapshot envelope version %d is newer than this binary understands (%d)", env.Version, stateEnvelopeVersion)
	}

	s := NewState(SectorID(env.LastCommittedSectorID))
	for i := range env.Staged {
		v := env.Staged[i]
		s.Staged[v.SectorID] = &v
	}
	for i := range env.Sealed {
		v := env.Sealed[i]
		s.Sealed[v.SectorID] = &v
	}
	return s, nil
}

// MarshalState serializes a State into its durable snapshot form.
// Unknown/extra fields on the decode side are tolerated by the
// underlying refmt map decoder, so old snapshots keep loading as
// fields are added; the explicit Version field additionally guards
// against outright incompatible layout changes.
func MarshalState(s *State) ([]byte, error) {
	b, err := cbornode.DumpObject(toEnvelope(s))
	if err != nil {
		return nil, xerrors.Errorf("marshaling state snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalState deserializes a snapshot produced by MarshalState.
func UnmarshalState(b []byte) (*State, error) {
	var env stateEnvelope
	if err := cbornode.DecodeInto(b, &env); err != nil {
		return nil, xerrors.Errorf("unmarshaling state snapshot: %w", err)
	}
	return fromEnvelope(&env)
}
