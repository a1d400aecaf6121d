package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/repositories"
)

// TreeRepository implements repositories.TreeRepository on SQLite
type TreeRepository struct {
	db    *sql.DB
	table string
}

// NewTreeRepository creates a tree repository over a database opened with Open
func NewTreeRepository(db *sql.DB, prefix string) repositories.TreeRepository {
	return &TreeRepository{db: db, table: tableName(prefix)}
}

// parentArg maps the root branch to NULL. Queries compare with IS so NULL
// matches NULL.
func parentArg(branch tree.BranchID) any {
	if branch.IsRoot() {
		return nil
	}
	return string(branch)
}

func branchOf(parent sql.NullString) tree.BranchID {
	if !parent.Valid {
		return tree.RootBranch
	}
	return tree.BranchID(parent.String)
}

func notFound(id string) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("item %q not found", id)}
}

func conflict(id string) error {
	return &domain.ConflictError{
		Message:      fmt.Sprintf("item %q already exists", id),
		ResourceType: "item",
		ResourceID:   id,
	}
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func (r *TreeRepository) ListChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error) {
	query := fmt.Sprintf(`
		SELECT id, is_folder, is_open FROM %s
		WHERE tree_id = ? AND parent_id IS ?
		ORDER BY position
	`, r.table)

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, treeID, parentArg(branch))
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	items := []tree.Node{}
	for rows.Next() {
		var node tree.Node
		if err := rows.Scan(&node.ID, &node.IsFolder, &node.IsOpen); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		items = append(items, node)
	}
	return items, rows.Err()
}

func (r *TreeRepository) GetNode(ctx context.Context, treeID, id string) (*repositories.StoredNode, error) {
	query := fmt.Sprintf(`
		SELECT id, is_folder, is_open, parent_id, position FROM %s
		WHERE tree_id = ? AND id = ?
	`, r.table)

	var node repositories.StoredNode
	var parent sql.NullString
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, treeID, id).
		Scan(&node.ID, &node.IsFolder, &node.IsOpen, &parent, &node.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	node.Parent = branchOf(parent)
	return &node, nil
}

func (r *TreeRepository) InsertAt(ctx context.Context, treeID string, branch tree.BranchID, index int, node tree.Node) error {
	if _, err := r.GetNode(ctx, treeID, node.ID); err == nil {
		return conflict(node.ID)
	}
	ids, err := r.branchIDs(ctx, treeID, branch)
	if err != nil {
		return err
	}
	index = max(0, min(index, len(ids)))

	query := fmt.Sprintf(`
		INSERT INTO %s (tree_id, id, parent_id, position, is_folder, is_open)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.table)
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx, query, treeID, node.ID, parentArg(branch), index, node.IsFolder, node.IsOpen); err != nil {
		if isConstraintError(err) {
			return conflict(node.ID)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return r.renumber(ctx, treeID, branch, slices.Insert(ids, index, node.ID))
}

func (r *TreeRepository) MoveTo(ctx context.Context, treeID, id string, branch tree.BranchID, index int) error {
	current, err := r.GetNode(ctx, treeID, id)
	if err != nil {
		return err
	}
	sourceIDs, err := r.branchIDs(ctx, treeID, current.Parent)
	if err != nil {
		return err
	}
	sourceIDs = slices.DeleteFunc(sourceIDs, func(s string) bool { return s == id })

	targetIDs := sourceIDs
	if branch != current.Parent {
		if targetIDs, err = r.branchIDs(ctx, treeID, branch); err != nil {
			return err
		}
		if err := r.renumber(ctx, treeID, current.Parent, sourceIDs); err != nil {
			return err
		}
	}
	index = max(0, min(index, len(targetIDs)))
	return r.renumber(ctx, treeID, branch, slices.Insert(slices.Clone(targetIDs), index, id))
}

func (r *TreeRepository) Delete(ctx context.Context, treeID, id string) (int, error) {
	current, err := r.GetNode(ctx, treeID, id)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM %[1]s WHERE tree_id = ?1 AND id = ?2
			UNION ALL
			SELECT n.id FROM %[1]s n JOIN subtree s ON n.parent_id = s.id
			WHERE n.tree_id = ?1
		)
		DELETE FROM %[1]s WHERE tree_id = ?1 AND id IN (SELECT id FROM subtree)
	`, r.table)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, treeID, id)
	if err != nil {
		return 0, fmt.Errorf("delete subtree: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subtree: %w", err)
	}

	remaining, err := r.branchIDs(ctx, treeID, current.Parent)
	if err != nil {
		return 0, err
	}
	return int(removed), r.renumber(ctx, treeID, current.Parent, remaining)
}

func (r *TreeRepository) SetOpen(ctx context.Context, treeID, id string, isOpen bool) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_open = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tree_id = ? AND id = ?
	`, r.table)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, isOpen, treeID, id)
	if err != nil {
		return fmt.Errorf("set open state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (r *TreeRepository) OpenStates(ctx context.Context, treeID string) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT id, is_open FROM %s WHERE tree_id = ?`, r.table)
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, treeID)
	if err != nil {
		return nil, fmt.Errorf("open states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var id string
		var isOpen bool
		if err := rows.Scan(&id, &isOpen); err != nil {
			return nil, fmt.Errorf("scan open state: %w", err)
		}
		states[id] = isOpen
	}
	return states, rows.Err()
}

func (r *TreeRepository) ReplaceTree(ctx context.Context, treeID string, branches map[tree.BranchID][]tree.Node) error {
	exec := getExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tree_id = ?`, r.table), treeID); err != nil {
		return fmt.Errorf("clear tree: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (tree_id, id, parent_id, position, is_folder, is_open)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.table)
	for branch, items := range branches {
		for position, item := range items {
			if _, err := exec.ExecContext(ctx, query, treeID, item.ID, parentArg(branch), position, item.IsFolder, item.IsOpen); err != nil {
				if isConstraintError(err) {
					return &domain.ValidationError{Message: "tree contains duplicate item ids"}
				}
				return fmt.Errorf("insert tree: %w", err)
			}
		}
	}
	return nil
}

func (r *TreeRepository) AllNodes(ctx context.Context, treeID string) (map[tree.BranchID][]tree.Node, error) {
	query := fmt.Sprintf(`
		SELECT id, parent_id, is_folder, is_open FROM %s
		WHERE tree_id = ?
		ORDER BY parent_id, position
	`, r.table)
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, treeID)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	defer rows.Close()

	branches := map[tree.BranchID][]tree.Node{tree.RootBranch: {}}
	for rows.Next() {
		var node tree.Node
		var parent sql.NullString
		if err := rows.Scan(&node.ID, &parent, &node.IsFolder, &node.IsOpen); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		branch := branchOf(parent)
		branches[branch] = append(branches[branch], node)
	}
	return branches, rows.Err()
}

func (r *TreeRepository) Trees(ctx context.Context) ([]string, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT tree_id FROM %s ORDER BY tree_id`, r.table))
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tree id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *TreeRepository) branchIDs(ctx context.Context, treeID string, branch tree.BranchID) ([]string, error) {
	items, err := r.ListChildren(ctx, treeID, branch)
	if err != nil {
		return nil, err
	}
	return tree.IDs(items), nil
}

func (r *TreeRepository) renumber(ctx context.Context, treeID string, branch tree.BranchID, ids []string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET parent_id = ?, position = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tree_id = ? AND id = ?
	`, r.table)
	exec := getExecutor(ctx, r.db)
	for position, id := range ids {
		if _, err := exec.ExecContext(ctx, query, parentArg(branch), position, treeID, id); err != nil {
			return fmt.Errorf("rewrite positions: %w", err)
		}
	}
	return nil
}
