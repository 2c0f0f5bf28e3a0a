// Package store contains the SQLite persistence for tasks and repositories.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clintrovert/taskhook/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// SQLiteStore persists tasks and repositories in SQLite
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every new connection to :memory: is a fresh database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertRepository creates the repository or renames an existing one.
// The external id is never modified.
func (s *SQLiteStore) UpsertRepository(ctx context.Context, externalID int64, name string) (*types.Repository, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (external_id, name, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		externalID, name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert repository: %w", err)
	}
	return &types.Repository{ExternalID: externalID, Name: name, UpdatedAt: now}, nil
}

// GetRepository retrieves a repository by its external id
func (s *SQLiteStore) GetRepository(ctx context.Context, externalID int64) (*types.Repository, error) {
	repo := &types.Repository{}
	err := s.db.QueryRowContext(ctx,
		`SELECT external_id, name, updated_at FROM repositories WHERE external_id = ?`,
		externalID,
	).Scan(&repo.ExternalID, &repo.Name, &repo.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %d: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return repo, nil
}

// GetTaskByDisplayID retrieves a task and its linked repositories
func (s *SQLiteStore) GetTaskByDisplayID(ctx context.Context, displayID string) (*types.Task, error) {
	var status string
	task := &types.Task{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_id, title, description, status, updated_at FROM tasks WHERE display_id = ?`,
		displayID,
	).Scan(&task.ID, &task.DisplayID, &task.Title, &task.Description, &status, &task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", displayID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	task.Status, err = types.ParseTaskStatus(status)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", displayID, err)
	}

	task.LinkedRepositories, err = s.linkedRepositories(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) linkedRepositories(ctx context.Context, taskID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repository_external_id FROM task_repositories WHERE task_id = ? ORDER BY repository_external_id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked repositories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan linked repository: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompleteTask marks the task Completed unless it already is. The returned
// bool is false when another writer completed it first.
func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID string) (time.Time, bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		string(types.StatusCompleted), now, taskID, string(types.StatusCompleted),
	)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to complete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to complete task: %w", err)
	}
	return now, n > 0, nil
}

// UpsertTask imports a task keyed by display id. New tasks take the given
// status; existing tasks keep theirs and only get title, description and
// repository links refreshed.
func (s *SQLiteStore) UpsertTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task.DisplayID == "" {
		return nil, fmt.Errorf("task display id is required")
	}
	status := task.Status
	if status == "" {
		status = types.StatusBacklog
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM tasks WHERE display_id = ?`, task.DisplayID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks (id, display_id, title, description, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, task.DisplayID, task.Title, task.Description, string(status), now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up task: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
			task.Title, task.Description, now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_repositories WHERE task_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear linked repositories: %w", err)
	}
	for _, repoID := range task.LinkedRepositories {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_repositories (task_id, repository_external_id) VALUES (?, ?)`,
			id, repoID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to link repository: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task: %w", err)
	}
	return s.GetTaskByDisplayID(ctx, task.DisplayID)
}
