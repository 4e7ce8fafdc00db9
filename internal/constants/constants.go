// Package constants provides named constants used throughout the netsweep codebase.
// This centralizes defaults and file layout names for better maintainability.
package constants

// Directory and file layout
const (
	// DirName is the per-project and per-user state directory name.
	DirName = ".netsweep"

	// LedgerFileName is the SQLite run ledger inside DirName.
	LedgerFileName = "netsweep.db"

	// EventsFileName is the JSONL event log inside DirName.
	EventsFileName = "events.jsonl"

	// ConfigFileName is the YAML tool configuration inside ~/DirName.
	ConfigFileName = "config.yaml"

	// ArchiveDirName holds exported plan archives inside DirName.
	ArchiveDirName = "archives"

	// NestedSuiteScript is the vendored simulator test script run after the Go tests.
	NestedSuiteScript = "lib/pynnless/test.sh"
)

// Experiment defaults
const (
	// DefaultRepeat is the number of runs per parameter combination when an
	// experiment does not set repeat.
	DefaultRepeat = 1

	// SeedModulus bounds derived per-run seeds to [0, 2^30).
	SeedModulus = 1 << 30
)

// Input parameter defaults, applied by typed accessors when a key is absent.
const (
	DefaultBurstSize  = 1
	DefaultTimeWindow = 100.0 // ms
	DefaultISI        = 1.0   // ms
	DefaultSigmaT     = 0.0
	DefaultSigmaTOffs = 0.0
)

// Topology parameter defaults, applied by typed accessors when a field is absent.
const (
	DefaultNeuronType   = "IF_cond_exp"
	DefaultMultiplicity = 1
	DefaultWeight       = 0.03
	DefaultSigmaW       = 0.0
)

// Runner defaults
const (
	// DefaultRunTimeoutSeconds bounds a single simulator invocation.
	DefaultRunTimeoutSeconds = 600

	// MaxPlanRuns caps how many runs a recorded plan may hold.
	MaxPlanRuns = 1_000_000

	// MaxSimulatorOutputBytes caps what is read from a simulator's stdout.
	MaxSimulatorOutputBytes = 16 * 1024 * 1024
)

// Archive limits
const (
	// MaxDecompressedArchiveSize is the maximum allowed size of a decompressed archive payload (200MB).
	MaxDecompressedArchiveSize = 200 * 1024 * 1024
)

// ValidOutputFormats lists the formats accepted by expand and config.
var ValidOutputFormats = map[string]bool{
	"table": true,
	"json":  true,
	"jsonl": true,
	"yaml":  true,
}
