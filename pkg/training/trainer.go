package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

var (
	// ErrNoDataset is returned when training starts before a dataset was uploaded
	ErrNoDataset = errors.New("no training dataset uploaded")

	// ErrInvalidDataset is returned when the dataset has validation errors
	ErrInvalidDataset = errors.New("dataset failed validation")

	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("training job not found")

	// ErrNotTrained is returned when the session has no completed training job
	ErrNotTrained = errors.New("model has not been trained yet")
)

// FewShotExamples is how many training examples back the fine-tuned model's answers
const FewShotExamples = 3

// Trainer manages per-session datasets, training jobs and the resulting models
type Trainer struct {
	llm        interfaces.LLM
	prompts    *prompts.Manager
	jobs       *JobStore
	phases     []Phase
	phaseDelay time.Duration
	logger     logging.Logger
	clock      func() time.Time

	mu       sync.RWMutex
	datasets map[string]*Dataset
	models   map[string]*Dataset
	cancels  map[string]context.CancelFunc
}

// Option configures a Trainer
type Option func(*Trainer)

// WithPhaseDelay sets how long each simulated phase takes
func WithPhaseDelay(delay time.Duration) Option {
	return func(t *Trainer) {
		t.phaseDelay = delay
	}
}

// WithPhases replaces the training phases
func WithPhases(phases []Phase) Option {
	return func(t *Trainer) {
		t.phases = phases
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithJobStore shares a job store
func WithJobStore(store *JobStore) Option {
	return func(t *Trainer) {
		t.jobs = store
	}
}

// NewTrainer creates a Trainer whose fine-tuned model is emulated by model with few-shot context
func NewTrainer(model interfaces.LLM, templates *prompts.Manager, options ...Option) *Trainer {
	t := &Trainer{
		llm:        model,
		prompts:    templates,
		jobs:       NewJobStore(),
		phases:     DefaultPhases,
		phaseDelay: 800 * time.Millisecond,
		logger:     logging.Nop(),
		clock:      time.Now,
		datasets:   make(map[string]*Dataset),
		models:     make(map[string]*Dataset),
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Upload parses and validates a dataset and keeps it as the session's current dataset
func (t *Trainer) Upload(ctx context.Context, name string, data []byte) (*Dataset, *Report, error) {
	dataset, err := LoadDataset(name, data)
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	t.datasets[session.IDOrDefault(ctx)] = dataset
	t.mu.Unlock()

	return dataset, Validate(dataset.Examples), nil
}

// Dataset returns the session's current dataset
func (t *Trainer) Dataset(ctx context.Context) (*Dataset, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dataset, ok := t.datasets[session.IDOrDefault(ctx)]
	return dataset, ok
}

// Start validates the session's dataset and trains on it in the background
func (t *Trainer) Start(ctx context.Context) (*Job, error) {
	dataset, ok := t.Dataset(ctx)
	if !ok {
		return nil, ErrNoDataset
	}

	report := Validate(dataset.Examples)
	if !report.Passed() {
		return nil, fmt.Errorf("%w: %d errors", ErrInvalidDataset, len(report.Errors))
	}

	now := t.clock()
	job := &Job{
		ID:          uuid.New().String(),
		SessionID:   session.IDOrDefault(ctx),
		DatasetName: dataset.Name,
		Examples:    len(dataset.Examples),
		Status:      StatusPending,
		Report:      report,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.jobs.Store(job)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	t.cancels[job.ID] = cancel
	t.mu.Unlock()

	t.logger.Info(ctx, "Training job started", map[string]interface{}{
		"job_id":   job.ID,
		"dataset":  dataset.Name,
		"examples": job.Examples,
	})

	go t.run(runCtx, job.ID, dataset)

	return job, nil
}

func (t *Trainer) run(ctx context.Context, jobID string, dataset *Dataset) {
	defer func() {
		t.mu.Lock()
		if cancel, ok := t.cancels[jobID]; ok {
			cancel()
			delete(t.cancels, jobID)
		}
		t.mu.Unlock()
	}()

	t.jobs.Update(jobID, func(j *Job) {
		j.Status = StatusRunning
		j.UpdatedAt = t.clock()
	})

	for _, phase := range t.phases {
		select {
		case <-ctx.Done():
			t.jobs.Update(jobID, func(j *Job) {
				j.Status = StatusCancelled
				j.UpdatedAt = t.clock()
			})
			return
		case <-time.After(t.phaseDelay):
		}

		t.jobs.Update(jobID, func(j *Job) {
			j.Phase = phase.Name
			j.Progress = phase.Progress
			j.UpdatedAt = t.clock()
		})
	}

	var sessionID string
	t.jobs.Update(jobID, func(j *Job) {
		now := t.clock()
		j.Status = StatusCompleted
		j.Progress = 100
		j.UpdatedAt = now
		j.CompletedAt = &now
		sessionID = j.SessionID
	})

	t.mu.Lock()
	t.models[sessionID] = dataset
	t.mu.Unlock()

	t.logger.Info(ctx, "Training job completed", map[string]interface{}{"job_id": jobID})
}

// Job returns a snapshot of a job
func (t *Trainer) Job(id string) (*Job, error) {
	job, ok := t.jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Jobs lists the session's jobs, newest first
func (t *Trainer) Jobs(ctx context.Context) []*Job {
	return t.jobs.List(session.IDOrDefault(ctx))
}

// Cancel stops a running job
func (t *Trainer) Cancel(id string) error {
	t.mu.Lock()
	cancel, ok := t.cancels[id]
	t.mu.Unlock()
	if !ok {
		if _, exists := t.jobs.Get(id); !exists {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil
	}
	cancel()
	return nil
}

// Trained reports whether the session has a fine-tuned model
func (t *Trainer) Trained(ctx context.Context) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.models[session.IDOrDefault(ctx)]
	return ok
}

// Answer queries the session's fine-tuned model
func (t *Trainer) Answer(ctx context.Context, question string) (string, error) {
	t.mu.RLock()
	dataset, ok := t.models[session.IDOrDefault(ctx)]
	t.mu.RUnlock()
	if !ok {
		return "", ErrNotTrained
	}

	examples := dataset.Examples
	if len(examples) > FewShotExamples {
		examples = examples[:FewShotExamples]
	}
	system, err := t.prompts.Render(ctx, "training_answer_system", map[string]interface{}{"Examples": examples})
	if err != nil {
		return "", err
	}

	output, err := t.llm.Generate(ctx, question,
		llm.WithSystemMessage(system),
		llm.WithTemperature(0.3),
		llm.WithMaxTokens(500),
	)
	if err != nil {
		return "", fmt.Errorf("failed to query fine-tuned model: %w", err)
	}

	return fmt.Sprintf("## 🤖 Fine-Tuned Model Response\n\n### Your Question:\n> %s\n\n### Model Output:\n%s\n\n---\n\n### Model Information\n- **Status:** ✅ Fine-tuned on %d examples\n- **Specialization:** Caltrans Standards & Technical Documentation\n\n**Ask another question** to test the fine-tuned model further.",
		question, output, len(dataset.Examples)), nil
}
