package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/repositories"
)

// PostgresTreeRepository implements the TreeRepository interface
type PostgresTreeRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewTreeRepository creates a new tree repository
func NewTreeRepository(config *RepositoryConfig) repositories.TreeRepository {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTreeRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: logger,
	}
}

// parentParam maps the root branch to NULL.
func parentParam(branch tree.BranchID) *string {
	if branch.IsRoot() {
		return nil
	}
	s := string(branch)
	return &s
}

func branchOf(parent *string) tree.BranchID {
	if parent == nil {
		return tree.RootBranch
	}
	return tree.BranchID(*parent)
}

func notFound(id string) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("item %q not found", id)}
}

// storeError wraps a driver error, reporting a missing schema as unavailable.
func storeError(action string, err error) error {
	if IsPgUndefinedTableError(err) {
		return fmt.Errorf("%s: schema missing: %w", action, domain.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// ListChildren returns the ordered items of one branch
func (r *PostgresTreeRepository) ListChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error) {
	query := fmt.Sprintf(`
		SELECT id, is_folder, is_open
		FROM %s
		WHERE tree_id = $1 AND parent_id IS NOT DISTINCT FROM $2
		ORDER BY position
	`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, treeID, parentParam(branch))
	if err != nil {
		return nil, storeError("list children", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return items, nil
}

// GetNode retrieves an item with its parent and position
func (r *PostgresTreeRepository) GetNode(ctx context.Context, treeID, id string) (*repositories.StoredNode, error) {
	query := fmt.Sprintf(`
		SELECT id, is_folder, is_open, parent_id, position
		FROM %s
		WHERE tree_id = $1 AND id = $2
	`, r.tables.TreeNodes)

	var node repositories.StoredNode
	var parent *string
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, treeID, id).Scan(
		&node.ID,
		&node.IsFolder,
		&node.IsOpen,
		&parent,
		&node.Position,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, notFound(id)
		}
		return nil, storeError("get item", err)
	}
	node.Parent = branchOf(parent)
	return &node, nil
}

// InsertAt adds a new item to a branch
func (r *PostgresTreeRepository) InsertAt(ctx context.Context, treeID string, branch tree.BranchID, index int, node tree.Node) error {
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
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, treeID, node.ID, parentParam(branch), index, node.IsFolder, node.IsOpen); err != nil {
		if IsPgDuplicateError(err) {
			return conflict(node.ID)
		}
		return storeError("insert item", err)
	}

	return r.renumber(ctx, treeID, branch, slices.Insert(ids, index, node.ID))
}

func conflict(id string) error {
	return &domain.ConflictError{
		Message:      fmt.Sprintf("item %q already exists", id),
		ResourceType: "item",
		ResourceID:   id,
	}
}

// MoveTo re-parents an item and rewrites positions of both branches
func (r *PostgresTreeRepository) MoveTo(ctx context.Context, treeID, id string, branch tree.BranchID, index int) error {
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

// Delete removes an item and its whole subtree
func (r *PostgresTreeRepository) Delete(ctx context.Context, treeID, id string) (int, error) {
	current, err := r.GetNode(ctx, treeID, id)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT id FROM %[1]s WHERE tree_id = $1 AND id = $2
			UNION ALL
			SELECT n.id FROM %[1]s n
			JOIN subtree s ON n.parent_id = s.id
			WHERE n.tree_id = $1
		)
		DELETE FROM %[1]s
		WHERE tree_id = $1 AND id IN (SELECT id FROM subtree)
	`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, treeID, id)
	if err != nil {
		return 0, storeError("delete subtree", err)
	}

	remaining, err := r.branchIDs(ctx, treeID, current.Parent)
	if err != nil {
		return 0, err
	}
	if err := r.renumber(ctx, treeID, current.Parent, remaining); err != nil {
		return 0, err
	}

	r.logger.Debug("subtree deleted", "tree_id", treeID, "item_id", id, "removed", tag.RowsAffected())
	return int(tag.RowsAffected()), nil
}

// SetOpen persists the open flag of an item
func (r *PostgresTreeRepository) SetOpen(ctx context.Context, treeID, id string, isOpen bool) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_open = $3, updated_at = NOW()
		WHERE tree_id = $1 AND id = $2
	`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, treeID, id, isOpen)
	if err != nil {
		return storeError("set open state", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// OpenStates returns the open flag of every item in a tree
func (r *PostgresTreeRepository) OpenStates(ctx context.Context, treeID string) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT id, is_open FROM %s WHERE tree_id = $1`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, treeID)
	if err != nil {
		return nil, storeError("open states", err)
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

// ReplaceTree deletes every item of a tree and inserts branches in one batch
func (r *PostgresTreeRepository) ReplaceTree(ctx context.Context, treeID string, branches map[tree.BranchID][]tree.Node) error {
	executor := GetExecutor(ctx, r.pool)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE tree_id = $1`, r.tables.TreeNodes)
	if _, err := executor.Exec(ctx, deleteQuery, treeID); err != nil {
		return storeError("clear tree", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (tree_id, id, parent_id, position, is_folder, is_open)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.TreeNodes)

	batch := &pgx.Batch{}
	for branch, items := range branches {
		for position, item := range items {
			batch.Queue(insertQuery, treeID, item.ID, parentParam(branch), position, item.IsFolder, item.IsOpen)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := executor.SendBatch(ctx, batch).Close(); err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ValidationError{Message: "tree contains duplicate item ids"}
		}
		return storeError("insert tree", err)
	}

	r.logger.Debug("tree replaced", "tree_id", treeID, "items", batch.Len())
	return nil
}

// AllNodes returns every non-empty branch of a tree
func (r *PostgresTreeRepository) AllNodes(ctx context.Context, treeID string) (map[tree.BranchID][]tree.Node, error) {
	query := fmt.Sprintf(`
		SELECT id, parent_id, is_folder, is_open
		FROM %s
		WHERE tree_id = $1
		ORDER BY parent_id NULLS FIRST, position
	`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, treeID)
	if err != nil {
		return nil, storeError("load tree", err)
	}
	defer rows.Close()

	branches := map[tree.BranchID][]tree.Node{tree.RootBranch: {}}
	for rows.Next() {
		var node tree.Node
		var parent *string
		if err := rows.Scan(&node.ID, &parent, &node.IsFolder, &node.IsOpen); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		branch := branchOf(parent)
		branches[branch] = append(branches[branch], node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return branches, nil
}

// Trees lists tree ids with at least one item
func (r *PostgresTreeRepository) Trees(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT tree_id FROM %s ORDER BY tree_id`, r.tables.TreeNodes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, storeError("list trees", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect trees: %w", err)
	}
	return ids, nil
}

func (r *PostgresTreeRepository) branchIDs(ctx context.Context, treeID string, branch tree.BranchID) ([]string, error) {
	items, err := r.ListChildren(ctx, treeID, branch)
	if err != nil {
		return nil, err
	}
	return tree.IDs(items), nil
}

// renumber writes dense positions for ids, all parented to branch.
func (r *PostgresTreeRepository) renumber(ctx context.Context, treeID string, branch tree.BranchID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET parent_id = $3, position = $4, updated_at = NOW()
		WHERE tree_id = $1 AND id = $2
	`, r.tables.TreeNodes)

	batch := &pgx.Batch{}
	for position, id := range ids {
		batch.Queue(query, treeID, id, parentParam(branch), position)
	}

	executor := GetExecutor(ctx, r.pool)
	if err := executor.SendBatch(ctx, batch).Close(); err != nil {
		return storeError("rewrite positions", err)
	}
	return nil
}
