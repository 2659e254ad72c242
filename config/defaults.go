package config

import "time"

// Default runtime limits and guardrails for the partner analytics server.
// Environment overrides are applied by internal/config.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxLoadedDatasets     = 4

	// Upload bounds
	DefaultMaxUploadBytes = 32 << 20 // 32MB
	DefaultMaxHeaderScan  = 20       // rows scanned to locate the two-level header

	// HTML table bounds
	MaxHTMLColspan   = 1000
	MaxHTMLRowspan   = 65534
	MaxHTMLGridCells = 4_000_000
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second
	DefaultModelCallTimeout      = 90 * time.Second

	// Loaded dataset cache
	DefaultDatasetIdleTTL       = 30 * time.Minute
	DefaultDatasetCleanupPeriod = time.Minute
)

const (
	// Reporting
	DefaultTopN              = 10
	DefaultConcentrationTopN = 5
	DefaultCompareMonths     = 4
	DefaultListPageSize      = 50

	// Trend & risk engine
	DefaultTrendMonths         = 3
	DefaultTrendMinRate        = 10.0
	DefaultChurnDeclinePercent = 20.0
	MinTrendMagnitude          = 1.0

	// Agent
	DefaultAgentMaxSteps       = 15
	DefaultModelName           = "gpt-4.1"
	DefaultModelRequestsPerSec = 2.0
	DefaultModelRequestBurst   = 4

	DefaultMaintenanceSchedule = "@every 10m"
)
