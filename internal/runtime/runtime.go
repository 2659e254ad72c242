package runtime

import (
	"context"
	"time"

	"github.com/vinodismyname/partnerlens/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency, size and time guardrails of the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxLoadedDatasets     int

	// Upload bounds
	MaxUploadBytes int64

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
	ModelCallTimeout      time.Duration
}

// NewLimits initializes Limits, falling back to defaults for unset values.
func NewLimits(maxConcurrentRequests, maxLoadedDatasets int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxLoadedDatasets <= 0 {
		maxLoadedDatasets = config.DefaultMaxLoadedDatasets
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxLoadedDatasets:     maxLoadedDatasets,
		MaxUploadBytes:        config.DefaultMaxUploadBytes,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
		ModelCallTimeout:      config.DefaultModelCallTimeout,
	}
}

// Controller gates in-flight requests and loaded datasets with weighted semaphores.
type Controller struct {
	limits           Limits
	requestSemaphore *semaphore.Weighted
	datasetSemaphore *semaphore.Weighted
}

// NewController constructs a Controller for limits.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:           limits,
		requestSemaphore: semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		datasetSemaphore: semaphore.NewWeighted(int64(limits.MaxLoadedDatasets)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireDataset reserves a loaded-dataset slot.
func (c *Controller) AcquireDataset(ctx context.Context) error {
	return c.datasetSemaphore.Acquire(ctx, 1)
}

// TryAcquireDataset reserves a loaded-dataset slot without waiting.
func (c *Controller) TryAcquireDataset() bool {
	return c.datasetSemaphore.TryAcquire(1)
}

// ReleaseDataset frees a loaded-dataset slot.
func (c *Controller) ReleaseDataset() {
	c.datasetSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
