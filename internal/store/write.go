package store

import (
	"context"
	"fmt"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/project"
)

// SaveProject appends doc as the next revision of the named project and
// returns the revision's seq. The whole revision is written in one
// transaction.
func (s *Store) SaveProject(ctx context.Context, name string, doc *project.Document) (int64, error) {
	if name == "" {
		return 0, errs.InvalidArgument("empty project name").WithOp("save_project")
	}
	if err := doc.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save project: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (name, project_id) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET project_id = excluded.project_id
	`, name, doc.ID); err != nil {
		return 0, fmt.Errorf("save project: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM revisions WHERE project = ?
	`, name).Scan(&seq); err != nil {
		return 0, fmt.Errorf("save project: next seq: %w", err)
	}

	objects := 0
	if doc.State != nil {
		objects = len(doc.State.Entries)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (project, seq, project_id, has_state, operation_count, object_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, seq, doc.ID, doc.State != nil, len(doc.Flow.Operations), objects); err != nil {
		return 0, fmt.Errorf("save project: revision: %w", err)
	}

	for i, rec := range doc.Flow.Operations {
		params, err := marshalObject(rec.Params)
		if err != nil {
			return 0, fmt.Errorf("save project: operation %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO operations (project, seq, idx, id, tag, params)
			VALUES (?, ?, ?, ?, ?, ?)
		`, name, seq, i, rec.ID, rec.Tag, params); err != nil {
			return 0, fmt.Errorf("save project: operation %d: %w", i, err)
		}
	}

	if doc.State != nil {
		for i, e := range doc.State.Entries {
			content, err := marshalObject(e.Content)
			if err != nil {
				return 0, fmt.Errorf("save project: state entry %d: %w", i, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO state_entries (project, seq, idx, kind, name, hash, content)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, name, seq, i, string(e.Kind), e.Name, e.Hash, content); err != nil {
				return 0, fmt.Errorf("save project: state entry %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save project: commit: %w", err)
	}
	return seq, nil
}

// DeleteProject removes a project and all its revisions.
func (s *Store) DeleteProject(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFound("project", name).WithOp("delete_project")
	}
	return nil
}
