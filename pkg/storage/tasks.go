package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TaskRecord is the durable view of an executor task.
type TaskRecord struct {
	ID           int64
	TaskID       uint64
	Status       TaskStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Metadata     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InsertTask records a new task in Pending status.
func (s *Store) InsertTask(taskID uint64, metadata string) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	res, err := s.db.Exec(
		`INSERT INTO tasks (task_id, status, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, string(TaskPending), metadata, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	rowID, _ := res.LastInsertId()

	created := parseTime(now)
	return &TaskRecord{
		ID:        rowID,
		TaskID:    taskID,
		Status:    TaskPending,
		Metadata:  metadata,
		CreatedAt: created,
		UpdatedAt: created,
	}, nil
}

// GetTask returns the record for a task-id, or nil when absent.
func (s *Store) GetTask(taskID uint64) (*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, task_id, status, started_at, completed_at, error_message, metadata, created_at, updated_at
		 FROM tasks WHERE task_id = ?`, taskID)
	return scanTask(row)
}

// UpdateTaskStatus advances a task's status, stamping started-at on Running
// and completed-at on any terminal status.
func (s *Store) UpdateTaskStatus(taskID uint64, status TaskStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()

	var res sql.Result
	var err error
	switch status {
	case TaskRunning:
		res, err = s.db.Exec(
			`UPDATE tasks SET status = ?, started_at = ?, updated_at = ? WHERE task_id = ?`,
			string(status), now, now, taskID)
	case TaskCompleted, TaskFailed, TaskCancelled:
		res, err = s.db.Exec(
			`UPDATE tasks SET status = ?, completed_at = ?, error_message = ?, updated_at = ? WHERE task_id = ?`,
			string(status), now, errorMessage, now, taskID)
	default:
		res, err = s.db.Exec(
			`UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`,
			string(status), now, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", taskID, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task %d not found", taskID)
	}
	return nil
}

// DeleteTask removes a task record. Missing records are not an error.
func (s *Store) DeleteTask(taskID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", taskID, err)
	}
	return nil
}

// ListTasks returns all task records, optionally filtered by status.
func (s *Store) ListTasks(status *TaskStatus) ([]*TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, task_id, status, started_at, completed_at, error_message, metadata, created_at, updated_at
	          FROM tasks ORDER BY id`
	var args []any
	if status != nil {
		query = `SELECT id, task_id, status, started_at, completed_at, error_message, metadata, created_at, updated_at
		         FROM tasks WHERE status = ? ORDER BY id`
		args = append(args, string(*status))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskRecord, error) {
	var (
		id           int64
		taskID       uint64
		status       string
		startedAt    sql.NullString
		completedAt  sql.NullString
		errorMessage sql.NullString
		metadata     sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&id, &taskID, &status, &startedAt, &completedAt, &errorMessage, &metadata, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &TaskRecord{
		ID:           id,
		TaskID:       taskID,
		Status:       TaskStatus(status),
		StartedAt:    optionalTime(startedAt),
		CompletedAt:  optionalTime(completedAt),
		ErrorMessage: errorMessage.String,
		Metadata:     metadata.String,
		CreatedAt:    parseTime(createdAt),
		UpdatedAt:    parseTime(updatedAt),
	}, nil
}
