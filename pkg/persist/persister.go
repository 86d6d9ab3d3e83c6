package persist

// Persister handles I/O for a specific state type using a Codec.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister with the given basename and codec.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Save writes state to the given directory using the provided build function.
func (p *Persister[T]) Save(dir string, buildState func() *T) error {
	state := buildState()

	return SaveState(dir, p.basename, p.codec, state)
}

// Load restores state from the given directory using the provided restore function.
func (p *Persister[T]) Load(dir string, restoreState func(*T)) error {
	var state T

	err := LoadState(dir, p.basename, p.codec, &state)
	if err != nil {
		return err
	}

	restoreState(&state)

	return nil
}

// DualPersister reads with a primary codec and falls back to a legacy codec
// when the primary file is absent, so snapshots written before a codec
// migration (e.g. plain JSON before gzip/zstd were adopted) still load.
// Writes always use the primary codec.
type DualPersister[T any] struct {
	primary *Persister[T]
	legacy  *Persister[T]
}

// NewDualPersister builds a DualPersister that writes with primaryCodec and
// reads with primaryCodec first, legacyCodec second.
func NewDualPersister[T any](basename string, primaryCodec, legacyCodec Codec) *DualPersister[T] {
	return &DualPersister[T]{
		primary: NewPersister[T](basename, primaryCodec),
		legacy:  NewPersister[T](basename, legacyCodec),
	}
}

// Save writes state using the primary codec.
func (p *DualPersister[T]) Save(dir string, buildState func() *T) error {
	return p.primary.Save(dir, buildState)
}

// Load tries the primary codec's file first, then the legacy codec's file.
func (p *DualPersister[T]) Load(dir string, restoreState func(*T)) error {
	if err := p.primary.Load(dir, restoreState); err == nil {
		return nil
	}

	return p.legacy.Load(dir, restoreState)
}
