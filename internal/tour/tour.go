// ABOUTME: Onboarding tour step definitions and per-member progress
// ABOUTME: Steps load from a TOML file; completion is tracked per member in the store

package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
)

// Service errors
var (
	ErrTourComplete = errors.New("tour complete")
	ErrUnknownStep  = errors.New("unknown tour step")
)

// Step is one stop of the onboarding tour. Anchor is the CSS selector the
// client highlights when showing the step.
type Step struct {
	ID        string `toml:"id"`
	Title     string `toml:"title"`
	Body      string `toml:"body"`
	Anchor    string `toml:"anchor"`
	Placement string `toml:"placement"`
}

type stepFile struct {
	Steps []Step `toml:"step"`
}

// LoadSteps reads tour step definitions from a TOML file. Step order in the
// file is the tour order. IDs must be unique and anchors non-empty.
func LoadSteps(path string) ([]Step, error) {
	var f stepFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decoding tour steps: %w", err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("no steps defined in %s", path)
	}

	seen := make(map[string]bool, len(f.Steps))
	for i, step := range f.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("step %d has no id", i)
		}
		if seen[step.ID] {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		if step.Anchor == "" {
			return nil, fmt.Errorf("step %q has no anchor", step.ID)
		}
	}
	return f.Steps, nil
}

// ProgressStore defines what the tour needs from storage.
type ProgressStore interface {
	MarkTourStep(ctx context.Context, memberID, stepID string, at time.Time) error
	TourProgress(ctx context.Context, memberID string) (map[string]time.Time, error)
	ResetTourProgress(ctx context.Context, memberID string) error
}

// Service walks members through the onboarding tour.
type Service struct {
	steps  []Step
	byID   map[string]int
	store  ProgressStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a tour service over the given steps. Pass nil logger for
// default.
func New(steps []Step, st ProgressStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]int, len(steps))
	for i, step := range steps {
		byID[step.ID] = i
	}
	return &Service{
		steps:  steps,
		byID:   byID,
		store:  st,
		logger: logger.With("component", "tour"),
		now:    time.Now,
	}
}

// Steps returns the full tour in order.
func (s *Service) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Next returns the first step the member has not completed, or
// ErrTourComplete when every step is done.
func (s *Service) Next(ctx context.Context, memberID string) (*Step, error) {
	done, err := s.store.TourProgress(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("loading tour progress: %w", err)
	}
	for i := range s.steps {
		if _, ok := done[s.steps[i].ID]; !ok {
			step := s.steps[i]
			return &step, nil
		}
	}
	return nil, ErrTourComplete
}

// Complete marks a step done for the member. Completing an already-done
// step is a no-op. Unknown step ids are rejected.
func (s *Service) Complete(ctx context.Context, memberID, stepID string) error {
	if _, ok := s.byID[stepID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, stepID)
	}
	if err := s.store.MarkTourStep(ctx, memberID, stepID, s.now()); err != nil {
		return fmt.Errorf("marking tour step: %w", err)
	}
	s.logger.Debug("tour step completed", "member_id", memberID, "step_id", stepID)
	return nil
}

// Reset clears a member's progress so the tour starts over.
func (s *Service) Reset(ctx context.Context, memberID string) error {
	if err := s.store.ResetTourProgress(ctx, memberID); err != nil {
		return fmt.Errorf("resetting tour progress: %w", err)
	}
	s.logger.Info("tour reset", "member_id", memberID)
	return nil
}

// Progress reports which steps the member has completed and when.
func (s *Service) Progress(ctx context.Context, memberID string) (map[string]time.Time, error) {
	return s.store.TourProgress(ctx, memberID)
}
