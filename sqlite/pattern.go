package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/autoprobe"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ autoprobe.PatternService = (*PatternService)(nil)

// PatternService implements autoprobe.PatternService using SQLite.
// Trees are stored as a flat JSON node list alongside their metadata.
type PatternService struct {
	db *DB
}

// NewPatternService creates a new PatternService.
func NewPatternService(db *DB) *PatternService {
	return &PatternService{db: db}
}

// CreatePattern validates and stores a new pattern tree.
func (s *PatternService) CreatePattern(ctx context.Context, tree *autoprobe.PatternTree) error {
	if err := autoprobe.ValidatePattern(tree).Err(); err != nil {
		return err
	}
	if strings.TrimSpace(tree.Name) == "" {
		return autoprobe.Errorf(autoprobe.EINVALID, "pattern name required")
	}

	nodes, err := json.Marshal(tree.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}

	tree.ID = uuid.New().String()
	tree.Version = autoprobe.SchemaV2
	now := time.Now().UTC()
	tree.CreatedAt = now
	tree.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, name, version, root_id, nodes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tree.ID, tree.Name, string(tree.Version), tree.RootID, string(nodes),
		formatTime(tree.CreatedAt), formatTime(tree.UpdatedAt))

	return err
}

// FindPatternByID retrieves a pattern tree by ID.
func (s *PatternService) FindPatternByID(ctx context.Context, id string) (*autoprobe.PatternTree, error) {
	trees, err := s.FindPatterns(ctx, autoprobe.PatternFilter{ID: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, autoprobe.Errorf(autoprobe.ENOTFOUND, "pattern not found")
	}
	return trees[0], nil
}

// FindPatterns retrieves pattern trees matching the filter, newest first.
func (s *PatternService) FindPatterns(ctx context.Context, filter autoprobe.PatternFilter) ([]*autoprobe.PatternTree, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT id, name, version, root_id, nodes, created_at, updated_at FROM patterns WHERE 1=1")

	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Name != nil {
		query.WriteString(" AND name = ?")
		args = append(args, *filter.Name)
	}

	query.WriteString(" ORDER BY created_at DESC, rowid DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trees []*autoprobe.PatternTree
	for rows.Next() {
		tree, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}

	return trees, rows.Err()
}

// UpdatePattern renames a pattern or replaces its nodes. A new root is
// validated before anything is written. Nodes of a pattern that tasks
// reference cannot be replaced, so stored results keep materializing the
// same way; renaming is always allowed.
func (s *PatternService) UpdatePattern(ctx context.Context, id string, upd autoprobe.PatternUpdate) (*autoprobe.PatternTree, error) {
	tree, err := s.FindPatternByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		tree.Name = *upd.Name
	}
	if upd.Root != nil {
		next := autoprobe.NewPatternTree(tree.Name, upd.Root)
		tree.RootID = next.RootID
		tree.Nodes = next.Nodes
	}

	if strings.TrimSpace(tree.Name) == "" {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "pattern name required")
	}
	if err := autoprobe.ValidatePattern(tree).Err(); err != nil {
		return nil, err
	}

	nodes, err := json.Marshal(tree.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nodes: %w", err)
	}
	tree.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if upd.Root != nil {
		var refs int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE pattern_id = ?", id).Scan(&refs); err != nil {
			return nil, err
		}
		if refs > 0 {
			return nil, autoprobe.Errorf(autoprobe.ECONFLICT, "pattern is used by %d task(s)", refs)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE patterns
		SET name = ?, root_id = ?, nodes = ?, updated_at = ?
		WHERE id = ?
	`, tree.Name, tree.RootID, string(nodes), formatTime(tree.UpdatedAt), id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tree, nil
}

// DeletePattern permanently removes a pattern that no task references.
func (s *PatternService) DeletePattern(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var refs int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE pattern_id = ?", id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return autoprobe.Errorf(autoprobe.ECONFLICT, "pattern is used by %d task(s)", refs)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM patterns WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return autoprobe.Errorf(autoprobe.ENOTFOUND, "pattern not found")
	}

	return tx.Commit()
}

func scanPattern(rows *sql.Rows) (*autoprobe.PatternTree, error) {
	var tree autoprobe.PatternTree
	var version, nodes, createdAt, updatedAt string

	if err := rows.Scan(&tree.ID, &tree.Name, &version, &tree.RootID, &nodes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tree.Version = autoprobe.SchemaVersion(version)

	if err := json.Unmarshal([]byte(nodes), &tree.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes of pattern %s: %w", tree.ID, err)
	}

	var err error
	if tree.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if tree.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}

	return &tree, nil
}
