package feed

import (
	"errors"
	"fmt"

	"geofeed/internal/model"
)

// ConfigurationError is returned by the planner when the batch constraints
// cannot produce a positive chunk size.
type ConfigurationError struct {
	Constraints BatchConstraints
	Reason      string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid batch constraints (max_batch=%d max_request=%d id_len=%d): %s",
		e.Constraints.MaxBatchSize, e.Constraints.MaxRequestLength, e.Constraints.EstimatedIDLength, e.Reason)
}

// FetchError records a single failed chunk fetch. It is logged and the chunk
// is treated as having no edges.
type FetchError struct {
	Wave      int
	ChunkSize int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch chunk (wave=%d size=%d): %v", e.Wave, e.ChunkSize, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PrimaryQueryError wraps a failure of the mode-specific content query.
// It is surfaced to callers as a retryable failure.
type PrimaryQueryError struct {
	Mode model.FeedMode
	Err  error
}

func (e *PrimaryQueryError) Error() string {
	return fmt.Sprintf("primary query (mode=%s): %v", e.Mode, e.Err)
}

func (e *PrimaryQueryError) Unwrap() error { return e.Err }

var (
	// ErrViewportSuperseded is returned to a viewport caller whose request was
	// replaced by a newer one before its result could be applied.
	ErrViewportSuperseded = errors.New("viewport request superseded")
)
