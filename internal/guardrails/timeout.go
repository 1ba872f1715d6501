package guardrails

import (
	"time"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Timeout clamp bounds.
const (
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 120
)

// TimeoutManager tracks the global query deadline across pipeline stages.
// Each stage checks that enough budget remains before starting.
type TimeoutManager struct {
	TimeoutSeconds int
	StartTime      time.Time
	Deadline       time.Time

	logger *observability.Logger
}

// NewTimeoutManager starts a deadline clock, clamping timeoutSeconds to
// [1, 120].
func NewTimeoutManager(timeoutSeconds int, logger *observability.Logger) *TimeoutManager {
	if timeoutSeconds < MinTimeoutSeconds {
		timeoutSeconds = MinTimeoutSeconds
	}
	if timeoutSeconds > MaxTimeoutSeconds {
		timeoutSeconds = MaxTimeoutSeconds
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	start := time.Now()
	tm := &TimeoutManager{
		TimeoutSeconds: timeoutSeconds,
		StartTime:      start,
		Deadline:       start.Add(time.Duration(timeoutSeconds) * time.Second),
		logger:         logger,
	}

	logger.Info().
		Int("timeout_seconds", timeoutSeconds).
		Msg("timeout_manager_started")

	return tm
}

// ElapsedMS returns milliseconds since the manager started.
func (tm *TimeoutManager) ElapsedMS() float64 {
	return float64(time.Since(tm.StartTime)) / float64(time.Millisecond)
}

// Remaining returns the time left before the deadline (may be negative).
func (tm *TimeoutManager) Remaining() time.Duration {
	return time.Until(tm.Deadline)
}

// AssertTimeAvailable returns a timeout error when less than minRequired
// remains before the deadline. stagesCompleted is carried into the error
// so responses can report pipeline progress.
func (tm *TimeoutManager) AssertTimeAvailable(minRequired time.Duration, stageName string, stagesCompleted int) error {
	remaining := tm.Remaining()
	if remaining >= minRequired {
		return nil
	}

	tm.logger.Warn().
		Int("timeout_seconds", tm.TimeoutSeconds).
		Float64("elapsed_ms", tm.ElapsedMS()).
		Dur("remaining", remaining).
		Str("stage", stageName).
		Int("stages_completed", stagesCompleted).
		Msg("timeout_exceeded_before_stage")

	return ragerr.NewTimeout(tm.TimeoutSeconds, tm.ElapsedMS(), stagesCompleted)
}

// LogStageTiming records an individual stage latency.
func (tm *TimeoutManager) LogStageTiming(stageName string, latencyMS float64) {
	tm.logger.Info().
		Str("stage", stageName).
		Float64("latency_ms", latencyMS).
		Float64("elapsed_ms", tm.ElapsedMS()).
		Int("timeout_seconds", tm.TimeoutSeconds).
		Msg("stage_complete")
}
