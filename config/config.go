// Package config defines the on-disk TOML configuration for a running
// sectorbuilder process: proof parameters, worker pool sizing, storage
// directories, and staged-sector capacity. Grounded on lotus's
// node/config convention of a single TOML-tagged struct with a
// Duration wrapper type for human-readable time values and a
// defaults-returning constructor.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
)

// Duration wraps time.Duration so it can be expressed in TOML as a
// string like "30s" instead of a raw integer of nanoseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// StorageConfig locates the directories the engine reads from and
// writes to. SectorStoreRoot is the parent under which LocalSectorStore
// creates its own "staged" and "sealed" subdirectories.
type StorageConfig struct {
	SectorStoreRoot string
	ScratchDir      string
	MetadataDir     string
	PieceDirPath    string
}

// WorkerConfig sizes the worker pool that executes Seal/Unseal/PoSt
// jobs.
type WorkerConfig struct {
	NumWorkers int
	QueueDepth int
}

// SealingConfig governs when staged sectors become eligible for
// sealing.
type SealingConfig struct {
	MaxNumStagedSectors int
	SectorSize          abi.SectorSize
	WaitForSealTimeout  Duration
}

// ProofsConfig locates the proof parameter cache used to hydrate the
// proving backend at startup.
type ProofsConfig struct {
	ParameterCacheDir string
	ParametersJSONPath string
}

// Config is the top-level TOML document.
type Config struct {
	Storage StorageConfig
	Worker  WorkerConfig
	Sealing SealingConfig
	Proofs  ProofsConfig
}

// Default returns a Config with conservative defaults suitable for a
// single-node development deployment.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			SectorStoreRoot: "~/.sectorbuilder/sectors",
			ScratchDir:      "~/.sectorbuilder/scratch",
			MetadataDir:     "~/.sectorbuilder/metadata",
			PieceDirPath:    "~/.sectorbuilder/piecedir",
		},
		Worker: WorkerConfig{
			NumWorkers: 2,
			QueueDepth: 8,
		},
		Sealing: SealingConfig{
			MaxNumStagedSectors: 1,
			SectorSize:          abi.SectorSize(2 << 10),
			WaitForSealTimeout:  Duration(5 * time.Minute),
		},
		Proofs: ProofsConfig{
			ParameterCacheDir:  "~/.sectorbuilder/parameters",
			ParametersJSONPath: "",
		},
	}
}

// Load reads and parses a TOML config file at path, filling in any
// fields absent from the file with Default's values.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, xerrors.Errorf("decoding config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating the file if necessary.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("creating config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return xerrors.Errorf("encoding config file %s: %w", path, err)
	}
	return nil
}
