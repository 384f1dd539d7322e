package training

import (
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of a training job
type Status string

const (
	// StatusPending indicates that the job is waiting to run
	StatusPending Status = "pending"
	// StatusRunning indicates that training is in progress
	StatusRunning Status = "running"
	// StatusCompleted indicates that the model is ready
	StatusCompleted Status = "completed"
	// StatusFailed indicates that training stopped with an error
	StatusFailed Status = "failed"
	// StatusCancelled indicates that the job was cancelled
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Phase is one step of the training run
type Phase struct {
	Name     string `json:"name"`
	Progress int    `json:"progress"`
}

// DefaultPhases are the steps of a LoRA fine-tune of the base model
var DefaultPhases = []Phase{
	{"Initializing base model (Llama-3.1-8B)...", 10},
	{"Loading pre-trained weights...", 20},
	{"Configuring LoRA adapters (rank=16)...", 30},
	{"Epoch 1/3 - Training on batch 1/2...", 40},
	{"Epoch 1/3 - Training on batch 2/2...", 50},
	{"Epoch 2/3 - Training on batch 1/2...", 60},
	{"Epoch 2/3 - Training on batch 2/2...", 70},
	{"Epoch 3/3 - Training on batch 1/2...", 80},
	{"Epoch 3/3 - Training on batch 2/2...", 90},
	{"Saving LoRA checkpoint...", 95},
	{"Merging adapters with base weights...", 98},
	{"Training complete!", 100},
}

// Job is a training run over one dataset
type Job struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	DatasetName string     `json:"dataset_name"`
	Examples    int        `json:"examples"`
	Status      Status     `json:"status"`
	Phase       string     `json:"phase"`
	Progress    int        `json:"progress"`
	Report      *Report    `json:"report,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobStore keeps training jobs in memory
type JobStore struct {
	jobs      map[string]*Job
	jobsMutex sync.RWMutex
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

// Store saves a job
func (s *JobStore) Store(job *Job) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

// Get returns a snapshot of the job with the given ID
func (s *JobStore) Get(id string) (*Job, bool) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()
	job, exists := s.jobs[id]
	if !exists {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// Update applies fn to the stored job. It returns false when the job does not exist.
func (s *JobStore) Update(id string, fn func(*Job)) bool {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	job, exists := s.jobs[id]
	if exists {
		fn(job)
	}
	return exists
}

// List returns snapshots of the session's jobs, newest first
func (s *JobStore) List(sessionID string) []*Job {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.SessionID == sessionID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Delete removes a job by ID
func (s *JobStore) Delete(id string) bool {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	_, exists := s.jobs[id]
	if exists {
		delete(s.jobs, id)
	}
	return exists
}
