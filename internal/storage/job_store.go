package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// JobStatus is the ingestion job lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// stageMetricKeys are the per-stage duration metrics that drive progress
// estimation.
var stageMetricKeys = []string{
	"extraction_duration_ms",
	"chunking_duration_ms",
	"embedding_duration_ms",
	"storage_duration_ms",
}

// IngestionJob tracks one end-to-end ingestion run.
type IngestionJob struct {
	IngestionID   uuid.UUID              `json:"ingestion_id"`
	DocumentID    uuid.UUID              `json:"document_id"`
	Status        JobStatus              `json:"status"`
	Filenames     []string               `json:"filenames"`
	ChunksCreated int                    `json:"chunks_created"`
	Metrics       map[string]interface{} `json:"metrics"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	ErrorStage    string                 `json:"error_stage,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// ProgressPercent estimates completion: 0 while pending, 25 + 20 per
// completed stage (capped at 99) while processing, 100 when completed,
// and at least 50 when failed.
func (j *IngestionJob) ProgressPercent() int {
	switch j.Status {
	case JobPending:
		return 0
	case JobProcessing:
		return j.processingProgress()
	case JobCompleted:
		return 100
	case JobFailed:
		p := j.processingProgress()
		if p < 50 {
			return 50
		}
		return p
	default:
		return 0
	}
}

func (j *IngestionJob) processingProgress() int {
	completed := 0
	for _, key := range stageMetricKeys {
		if _, ok := j.Metrics[key]; ok {
			completed++
		}
	}
	p := 25 + completed*20
	if p > 99 {
		p = 99
	}
	return p
}

// TotalDurationMS is the elapsed time since job creation, frozen at
// completion.
func (j *IngestionJob) TotalDurationMS() float64 {
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return float64(end.Sub(j.CreatedAt)) / float64(time.Millisecond)
}

// JobStore persists ingestion job state.
type JobStore interface {
	CreateJob(ingestionID, documentID uuid.UUID, filenames []string) (*IngestionJob, error)
	GetJob(ingestionID uuid.UUID) (*IngestionJob, error)
	UpdateStatus(ingestionID uuid.UUID, status JobStatus, errorMessage, errorStage string) error
	UpdateMetrics(ingestionID uuid.UUID, stage string, durationMS float64, extra map[string]interface{}) error
	SetChunksCreated(ingestionID uuid.UUID, count int) error
	Close() error
}

// MemoryJobStore is the in-memory reference job store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*IngestionJob
}

// NewMemoryJobStore creates an empty job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*IngestionJob)}
}

// CreateJob implements JobStore.
func (s *MemoryJobStore) CreateJob(ingestionID, documentID uuid.UUID, filenames []string) (*IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &IngestionJob{
		IngestionID: ingestionID,
		DocumentID:  documentID,
		Status:      JobPending,
		Filenames:   filenames,
		Metrics:     map[string]interface{}{},
		CreatedAt:   time.Now(),
	}
	s.jobs[ingestionID] = job
	copy := *job
	return &copy, nil
}

// GetJob implements JobStore. Returns a copy; nil when unknown.
func (s *MemoryJobStore) GetJob(ingestionID uuid.UUID) (*IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[ingestionID]
	if !ok {
		return nil, nil
	}
	copy := *job
	copy.Metrics = cloneMetrics(job.Metrics)
	return &copy, nil
}

// UpdateStatus implements JobStore.
func (s *MemoryJobStore) UpdateStatus(ingestionID uuid.UUID, status JobStatus, errorMessage, errorStage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ingestionID]
	if !ok {
		return ragerr.NewNotFound("ingestion job not found")
	}

	job.Status = status
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	if errorStage != "" {
		job.ErrorStage = errorStage
	}

	now := time.Now()
	if status == JobProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status == JobCompleted || status == JobFailed {
		job.CompletedAt = &now
	}
	return nil
}

// UpdateMetrics implements JobStore. Records {stage}_duration_ms plus any
// extra metrics, and maintains the derived total.
func (s *MemoryJobStore) UpdateMetrics(ingestionID uuid.UUID, stage string, durationMS float64, extra map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ingestionID]
	if !ok {
		return ragerr.NewNotFound("ingestion job not found")
	}

	job.Metrics[stage+"_duration_ms"] = durationMS
	for k, v := range extra {
		job.Metrics[k] = v
	}

	total := 0.0
	for _, key := range stageMetricKeys {
		if v, ok := job.Metrics[key].(float64); ok {
			total += v
		}
	}
	job.Metrics["total_duration_ms"] = total
	return nil
}

// SetChunksCreated implements JobStore.
func (s *MemoryJobStore) SetChunksCreated(ingestionID uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[ingestionID]
	if !ok {
		return ragerr.NewNotFound("ingestion job not found")
	}
	job.ChunksCreated = count
	return nil
}

// Close implements JobStore.
func (s *MemoryJobStore) Close() error {
	return nil
}

func cloneMetrics(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
