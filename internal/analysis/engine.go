package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/jengzang/svi-coverage-go/internal/config"
)

// ErrUnknownStep is returned when no step is registered under a name
var ErrUnknownStep = errors.New("unknown pipeline step")

// Step is the interface that all pipeline steps must implement
type Step interface {
	// Run performs the step and returns its outcome
	Run(ctx context.Context) (*Progress, error)

	// GetName returns the name of the step
	GetName() string
}

// Progress represents the outcome counters of a step
type Progress struct {
	Processed int    // Number of records processed
	Total     int    // Total number of records seen
	Failed    int    // Number of failed records
	Message   string // Optional summary message
}

// Percent returns processed/total as a percentage (0-100)
func (p *Progress) Percent() float64 {
	if p == nil || p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * 100.0
}

// RunRecorder persists the lifecycle of step executions
type RunRecorder interface {
	Start(ctx context.Context, step string) (string, error)
	Complete(ctx context.Context, runID string, p *Progress) error
	Fail(ctx context.Context, runID string, p *Progress, errorMsg string) error
}

// StepFactory is a function that creates a step instance.
// db is nil when no results database is configured.
type StepFactory func(cfg *config.Config, db *sql.DB) (Step, error)

// StepRegistry maps step names to step factories
var StepRegistry = make(map[string]StepFactory)

// RegisterStep registers a step factory for a step name
func RegisterStep(name string, factory StepFactory) {
	StepRegistry[name] = factory
}

// GetStep builds a step instance for a step name
func GetStep(name string, cfg *config.Config, db *sql.DB) (Step, error) {
	factory, ok := StepRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	return factory(cfg, db)
}

// StepNames returns the registered step names in sorted order
func StepNames() []string {
	names := make([]string, 0, len(StepRegistry))
	for name := range StepRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a step and records its lifecycle when a recorder is given.
// A recorder failure is logged but never masks the step result.
func Execute(ctx context.Context, step Step, recorder RunRecorder) (*Progress, error) {
	name := step.GetName()
	log.Printf("[%s] Starting", name)

	runID := ""
	if recorder != nil {
		id, err := recorder.Start(ctx, name)
		if err != nil {
			log.Printf("[%s] Failed to record run start: %v", name, err)
		} else {
			runID = id
		}
	}

	progress, err := step.Run(ctx)
	if progress == nil {
		progress = &Progress{}
	}

	if runID != "" {
		// Recording must survive a cancelled step context
		recCtx := context.WithoutCancel(ctx)
		var recErr error
		if err != nil {
			recErr = recorder.Fail(recCtx, runID, progress, err.Error())
		} else {
			recErr = recorder.Complete(recCtx, runID, progress)
		}
		if recErr != nil {
			log.Printf("[%s] Failed to record run result: %v", name, recErr)
		}
	}

	if err != nil {
		return progress, fmt.Errorf("step %s failed: %w", name, err)
	}

	log.Printf("[%s] Completed: processed=%d total=%d failed=%d %s",
		name, progress.Processed, progress.Total, progress.Failed, progress.Message)
	return progress, nil
}
