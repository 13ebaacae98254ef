package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/project"
)

// ProjectInfo summarizes one stored project.
type ProjectInfo struct {
	Name      string
	ID        string
	Revisions int
	Latest    int64
}

// Revision summarizes one saved revision.
type Revision struct {
	Seq        int64
	ProjectID  string
	HasState   bool
	Operations int
	Objects    int
}

// LoadProject rebuilds a saved revision. seq 0 selects the latest one.
// Unknown projects and revisions are NotFound; rows whose id or hash no
// longer match their content are a LoadError.
func (s *Store) LoadProject(ctx context.Context, name string, seq int64) (*project.Document, error) {
	if seq == 0 {
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq), 0) FROM revisions WHERE project = ?
		`, name).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}
		if seq == 0 {
			return nil, errs.NotFound("project", name).WithOp("load_project")
		}
	}

	var (
		projectID string
		hasState  bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, has_state FROM revisions WHERE project = ? AND seq = ?
	`, name, seq).Scan(&projectID, &hasState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("revision", fmt.Sprintf("%s@%d", name, seq)).WithOp("load_project")
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	records, err := s.readOperations(ctx, name, seq)
	if err != nil {
		return nil, err
	}
	doc := &project.Document{
		Format:  project.FormatName,
		Version: project.Version,
		ID:      projectID,
		Flow:    &project.FlowSection{Operations: records},
	}
	if hasState {
		state, err := s.readState(ctx, name, seq)
		if err != nil {
			return nil, err
		}
		doc.State = state
	}
	return doc, nil
}

func (s *Store) readOperations(ctx context.Context, name string, seq int64) ([]project.OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, id, tag, params
		FROM operations
		WHERE project = ? AND seq = ?
		ORDER BY idx ASC
	`, name, seq)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	records := []project.OperationRecord{}
	for rows.Next() {
		var (
			idx    int
			rec    project.OperationRecord
			params string
		)
		if err := rows.Scan(&idx, &rec.ID, &rec.Tag, &params); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if idx != len(records) {
			return nil, errs.LoadError("operation rows skip from %d to %d", len(records), idx)
		}
		if rec.Params, err = unmarshalObject(params); err != nil {
			return nil, errs.LoadErrorWrap(err, "operation %d", idx)
		}
		if rec.ID != "" {
			want, err := ir.OperationID(idx, rec.Tag, rec.Params)
			if err != nil {
				return nil, errs.LoadErrorWrap(err, "operation %d", idx)
			}
			if want != rec.ID {
				return nil, errs.LoadError("operation %d (%s): stored id does not match its content", idx, rec.Tag)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return records, nil
}

func (s *Store) readState(ctx context.Context, name string, seq int64) (*framework.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, hash, content
		FROM state_entries
		WHERE project = ? AND seq = ?
		ORDER BY idx ASC
	`, name, seq)
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	defer rows.Close()

	snap := &framework.Snapshot{Entries: []framework.SnapshotEntry{}}
	for rows.Next() {
		var (
			e       framework.SnapshotEntry
			kind    string
			content string
		)
		if err := rows.Scan(&kind, &e.Name, &e.Hash, &content); err != nil {
			return nil, fmt.Errorf("scan state entry: %w", err)
		}
		if e.Kind, err = kernel.ParseKind(kind); err != nil {
			return nil, errs.LoadErrorWrap(err, "state entry %q", e.Name)
		}
		if e.Content, err = unmarshalObject(content); err != nil {
			return nil, errs.LoadErrorWrap(err, "state entry %q", e.Name)
		}
		hash, err := ir.ContentHash(kind, e.Content)
		if err != nil {
			return nil, errs.LoadErrorWrap(err, "state entry %q", e.Name)
		}
		if hash != e.Hash {
			return nil, errs.LoadError("state entry %s:%s: stored hash does not match its content", kind, e.Name)
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return snap, nil
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, p.project_id, COUNT(r.seq), COALESCE(MAX(r.seq), 0)
		FROM projects p
		LEFT JOIN revisions r ON r.project = p.name
		GROUP BY p.name, p.project_id
		ORDER BY p.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []ProjectInfo{}
	for rows.Next() {
		var p ProjectInfo
		if err := rows.Scan(&p.Name, &p.ID, &p.Revisions, &p.Latest); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// ListRevisions returns a project's revisions, oldest first.
func (s *Store) ListRevisions(ctx context.Context, name string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, project_id, has_state, operation_count, object_count
		FROM revisions
		WHERE project = ?
		ORDER BY seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	out := []Revision{}
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.Seq, &r.ProjectID, &r.HasState, &r.Operations, &r.Objects); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	if len(out) == 0 {
		return nil, errs.NotFound("project", name).WithOp("list_revisions")
	}
	return out, nil
}
