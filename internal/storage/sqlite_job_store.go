package storage

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

// SQLiteJobStore persists ingestion jobs in SQLite, so job status
// survives process restarts in single-node deployments.
type SQLiteJobStore struct {
	db *sql.DB
}

// NewSQLiteJobStore opens (or creates) the database at path.
func NewSQLiteJobStore(path, journalMode string) (*SQLiteJobStore, error) {
	dsn := path
	if journalMode != "" {
		dsn += "?_journal_mode=" + journalMode
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, ragerr.NewStorage("open sqlite: " + err.Error())
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ingestion_jobs (
		ingestion_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		status TEXT NOT NULL,
		filenames TEXT NOT NULL,
		chunks_created INTEGER NOT NULL DEFAULT 0,
		metrics TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		error_stage TEXT,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, ragerr.NewStorage("ensure sqlite schema: " + err.Error())
	}

	return &SQLiteJobStore{db: db}, nil
}

// CreateJob implements JobStore.
func (s *SQLiteJobStore) CreateJob(ingestionID, documentID uuid.UUID, filenames []string) (*IngestionJob, error) {
	job := &IngestionJob{
		IngestionID: ingestionID,
		DocumentID:  documentID,
		Status:      JobPending,
		Filenames:   filenames,
		Metrics:     map[string]interface{}{},
		CreatedAt:   time.Now(),
	}

	_, err := s.db.Exec(`INSERT INTO ingestion_jobs
		(ingestion_id, document_id, status, filenames, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ingestionID.String(), documentID.String(), string(JobPending),
		strings.Join(filenames, "\n"), job.CreatedAt)
	if err != nil {
		return nil, ragerr.NewStorage("create job: " + err.Error())
	}
	return job, nil
}

// GetJob implements JobStore. Returns nil when unknown.
func (s *SQLiteJobStore) GetJob(ingestionID uuid.UUID) (*IngestionJob, error) {
	row := s.db.QueryRow(`SELECT ingestion_id, document_id, status, filenames,
		chunks_created, metrics, error_message, error_stage,
		created_at, started_at, completed_at
		FROM ingestion_jobs WHERE ingestion_id = ?`, ingestionID.String())

	var (
		job          IngestionJob
		idStr        string
		docStr       string
		status       string
		filenames    string
		metricsJSON  string
		errorMessage sql.NullString
		errorStage   sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(&idStr, &docStr, &status, &filenames, &job.ChunksCreated,
		&metricsJSON, &errorMessage, &errorStage, &job.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.NewStorage("get job: " + err.Error())
	}

	job.IngestionID, _ = uuid.Parse(idStr)
	job.DocumentID, _ = uuid.Parse(docStr)
	job.Status = JobStatus(status)
	if filenames != "" {
		job.Filenames = strings.Split(filenames, "\n")
	}
	if err := json.Unmarshal([]byte(metricsJSON), &job.Metrics); err != nil {
		job.Metrics = map[string]interface{}{}
	}
	job.ErrorMessage = errorMessage.String
	job.ErrorStage = errorStage.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// UpdateStatus implements JobStore.
func (s *SQLiteJobStore) UpdateStatus(ingestionID uuid.UUID, status JobStatus, errorMessage, errorStage string) error {
	job, err := s.GetJob(ingestionID)
	if err != nil {
		return err
	}
	if job == nil {
		return ragerr.NewNotFound("ingestion job not found")
	}

	now := time.Now()
	startedAt := job.StartedAt
	if status == JobProcessing && startedAt == nil {
		startedAt = &now
	}
	completedAt := job.CompletedAt
	if status == JobCompleted || status == JobFailed {
		completedAt = &now
	}
	if errorMessage == "" {
		errorMessage = job.ErrorMessage
	}
	if errorStage == "" {
		errorStage = job.ErrorStage
	}

	_, err = s.db.Exec(`UPDATE ingestion_jobs SET status = ?, error_message = ?,
		error_stage = ?, started_at = ?, completed_at = ? WHERE ingestion_id = ?`,
		string(status), errorMessage, errorStage, startedAt, completedAt, ingestionID.String())
	if err != nil {
		return ragerr.NewStorage("update status: " + err.Error())
	}
	return nil
}

// UpdateMetrics implements JobStore.
func (s *SQLiteJobStore) UpdateMetrics(ingestionID uuid.UUID, stage string, durationMS float64, extra map[string]interface{}) error {
	job, err := s.GetJob(ingestionID)
	if err != nil {
		return err
	}
	if job == nil {
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

	metricsJSON, err := json.Marshal(job.Metrics)
	if err != nil {
		return ragerr.NewStorage("marshal metrics: " + err.Error())
	}
	if _, err := s.db.Exec(`UPDATE ingestion_jobs SET metrics = ? WHERE ingestion_id = ?`,
		string(metricsJSON), ingestionID.String()); err != nil {
		return ragerr.NewStorage("update metrics: " + err.Error())
	}
	return nil
}

// SetChunksCreated implements JobStore.
func (s *SQLiteJobStore) SetChunksCreated(ingestionID uuid.UUID, count int) error {
	result, err := s.db.Exec(`UPDATE ingestion_jobs SET chunks_created = ? WHERE ingestion_id = ?`,
		count, ingestionID.String())
	if err != nil {
		return ragerr.NewStorage("set chunks created: " + err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ragerr.NewNotFound("ingestion job not found")
	}
	return nil
}

// Close implements JobStore.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}
