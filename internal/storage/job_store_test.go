package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPercent(t *testing.T) {
	job := &IngestionJob{Status: JobPending, Metrics: map[string]interface{}{}}
	assert.Equal(t, 0, job.ProgressPercent())

	job.Status = JobProcessing
	assert.Equal(t, 25, job.ProgressPercent())

	job.Metrics["extraction_duration_ms"] = 10.0
	assert.Equal(t, 45, job.ProgressPercent())

	job.Metrics["chunking_duration_ms"] = 5.0
	job.Metrics["embedding_duration_ms"] = 100.0
	assert.Equal(t, 85, job.ProgressPercent())

	// All four stages would be 105; processing caps at 99.
	job.Metrics["storage_duration_ms"] = 20.0
	assert.Equal(t, 99, job.ProgressPercent())

	job.Status = JobCompleted
	assert.Equal(t, 100, job.ProgressPercent())
}

func TestProgressPercent_FailedFloorsAt50(t *testing.T) {
	job := &IngestionJob{Status: JobFailed, Metrics: map[string]interface{}{}}
	assert.Equal(t, 50, job.ProgressPercent())

	job.Metrics["extraction_duration_ms"] = 10.0
	job.Metrics["chunking_duration_ms"] = 10.0
	job.Metrics["embedding_duration_ms"] = 10.0
	assert.Equal(t, 85, job.ProgressPercent())
}

func TestMemoryJobStore_Lifecycle(t *testing.T) {
	store := NewMemoryJobStore()
	ingestionID := uuid.New()
	documentID := uuid.New()

	created, err := store.CreateJob(ingestionID, documentID, []string{"a.pdf", "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, JobPending, created.Status)
	assert.Nil(t, created.StartedAt)
	assert.Nil(t, created.CompletedAt)

	require.NoError(t, store.UpdateStatus(ingestionID, JobProcessing, "", ""))
	job, err := store.GetJob(ingestionID)
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	startedAt := *job.StartedAt

	// A second processing update must not reset the start time.
	require.NoError(t, store.UpdateStatus(ingestionID, JobProcessing, "", ""))
	job, err = store.GetJob(ingestionID)
	require.NoError(t, err)
	assert.Equal(t, startedAt, *job.StartedAt)

	require.NoError(t, store.UpdateStatus(ingestionID, JobCompleted, "", ""))
	job, err = store.GetJob(ingestionID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
}

func TestMemoryJobStore_FailureRecordsStage(t *testing.T) {
	store := NewMemoryJobStore()
	ingestionID := uuid.New()
	_, err := store.CreateJob(ingestionID, uuid.New(), []string{"a.pdf"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ingestionID, JobFailed, "extractor crashed", "extraction"))

	job, err := store.GetJob(ingestionID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "extractor crashed", job.ErrorMessage)
	assert.Equal(t, "extraction", job.ErrorStage)
	require.NotNil(t, job.CompletedAt)
}

func TestMemoryJobStore_GetJobUnknown(t *testing.T) {
	store := NewMemoryJobStore()
	job, err := store.GetJob(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, job)

	assert.Error(t, store.UpdateStatus(uuid.New(), JobProcessing, "", ""))
	assert.Error(t, store.SetChunksCreated(uuid.New(), 3))
}

func TestMemoryJobStore_UpdateMetrics(t *testing.T) {
	store := NewMemoryJobStore()
	ingestionID := uuid.New()
	_, err := store.CreateJob(ingestionID, uuid.New(), []string{"a.pdf"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateMetrics(ingestionID, "extraction", 120.0,
		map[string]interface{}{"pages": 4}))
	require.NoError(t, store.UpdateMetrics(ingestionID, "chunking", 30.0, nil))

	job, err := store.GetJob(ingestionID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, job.Metrics["extraction_duration_ms"])
	assert.Equal(t, 30.0, job.Metrics["chunking_duration_ms"])
	assert.Equal(t, 4, job.Metrics["pages"])
	assert.Equal(t, 150.0, job.Metrics["total_duration_ms"])
}

func TestMemoryJobStore_GetJobReturnsCopy(t *testing.T) {
	store := NewMemoryJobStore()
	ingestionID := uuid.New()
	_, err := store.CreateJob(ingestionID, uuid.New(), []string{"a.pdf"})
	require.NoError(t, err)

	job, err := store.GetJob(ingestionID)
	require.NoError(t, err)
	job.Status = JobFailed
	job.Metrics["injected"] = true

	again, err := store.GetJob(ingestionID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, again.Status)
	assert.NotContains(t, again.Metrics, "injected")
}
