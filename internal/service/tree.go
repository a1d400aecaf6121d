package service

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"cleantree/internal/config"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/repositories"
	"cleantree/internal/domain/services"
	"cleantree/internal/event"
	"cleantree/internal/treeops"
)

type treeService struct {
	repo      repositories.TreeRepository
	txManager repositories.TransactionManager
	feed      *Feed
	sim       Simulation
	logger    *slog.Logger
}

// NewTreeService creates a new tree service. feed may be nil, in which case
// changes are not published.
func NewTreeService(
	repo repositories.TreeRepository,
	txManager repositories.TransactionManager,
	feed *Feed,
	sim Simulation,
	logger *slog.Logger,
) services.TreeService {
	if feed == nil {
		feed = NewFeed()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &treeService{
		repo:      repo,
		txManager: txManager,
		feed:      feed,
		sim:       sim,
		logger:    logger,
	}
}

func validateTreeID(treeID string) error {
	err := validation.Validate(treeID,
		validation.Required,
		validation.Length(1, config.MaxTreeIDLength),
	)
	if err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("tree id: %v", err)}
	}
	return nil
}

// LoadChildren returns the ordered children of a branch
func (s *treeService) LoadChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}
	if err := s.sim.apply(ctx, "load"); err != nil {
		return nil, err
	}
	if !branch.IsRoot() {
		if _, err := s.repo.GetNode(ctx, treeID, string(branch)); err != nil {
			return nil, err
		}
	}
	return s.repo.ListChildren(ctx, treeID, branch)
}

// MoveItem relocates an item. The index is interpreted the way the client
// reorders: within one branch it counts positions before the item is taken
// out.
func (s *treeService) MoveItem(ctx context.Context, treeID string, args tree.MoveArgs) (*tree.MoveResult, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.sim.apply(ctx, "move"); err != nil {
		return nil, err
	}

	var result tree.MoveResult
	var source tree.BranchID
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetNode(ctx, treeID, args.ItemID)
		if err != nil {
			return err
		}
		source = current.Parent
		if source != args.SourceBranchID {
			// Last write wins; the stored parent is authoritative
			s.logger.Debug("move source differs from stored parent",
				"item_id", args.ItemID,
				"claimed", args.SourceBranchID.String(),
				"stored", source.String(),
			)
		}

		if err := s.validateNoCircularReference(ctx, treeID, args.ItemID, args.TargetBranchID); err != nil {
			return err
		}

		index := args.TargetIndex
		if source == args.TargetBranchID && index > current.Position {
			index--
		}
		if err := s.repo.MoveTo(ctx, treeID, args.ItemID, args.TargetBranchID, index); err != nil {
			return err
		}

		if result.SourceBranchItems, err = s.repo.ListChildren(ctx, treeID, source); err != nil {
			return err
		}
		result.TargetBranchItems = result.SourceBranchItems
		if source != args.TargetBranchID {
			result.TargetBranchItems, err = s.repo.ListChildren(ctx, treeID, args.TargetBranchID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("item moved",
		"tree_id", treeID,
		"user_id", domain.UserID(ctx),
		"item_id", args.ItemID,
		"source", source.String(),
		"target", args.TargetBranchID.String(),
		"index", args.TargetIndex,
	)

	changes := []event.Event{event.BranchReconcile{BranchID: args.TargetBranchID, Items: result.TargetBranchItems}}
	if source != args.TargetBranchID {
		changes = append(changes, event.BranchReconcile{BranchID: source, Items: result.SourceBranchItems})
	}
	s.feed.Publish(treeID, changes...)

	return &result, nil
}

// validateNoCircularReference rejects moving an item into itself or one of
// its descendants.
func (s *treeService) validateNoCircularReference(ctx context.Context, treeID, itemID string, target tree.BranchID) error {
	if target == tree.Branch(itemID) {
		return &domain.ValidationError{Message: "cannot move an item into itself"}
	}

	current := target
	for !current.IsRoot() {
		node, err := s.repo.GetNode(ctx, treeID, string(current))
		if err != nil {
			return fmt.Errorf("target branch: %w", err)
		}
		if node.Parent == tree.Branch(itemID) {
			return &domain.ValidationError{Message: "cannot move an item into its own descendant"}
		}
		current = node.Parent
	}
	return nil
}

// CreateItem appends a new item to its parent branch
func (s *treeService) CreateItem(ctx context.Context, treeID string, req *services.CreateItemRequest) ([]tree.Node, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}
	if req.Item.ID == "" {
		req.Item.ID = uuid.NewString()
	}
	if req.Folder {
		req.Item.IsFolder = true
	}
	if err := req.Item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.sim.apply(ctx, "create"); err != nil {
		return nil, err
	}

	var items []tree.Node
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if !req.Parent.IsRoot() {
			if _, err := s.repo.GetNode(ctx, treeID, string(req.Parent)); err != nil {
				return fmt.Errorf("parent: %w", err)
			}
		}
		siblings, err := s.repo.ListChildren(ctx, treeID, req.Parent)
		if err != nil {
			return err
		}
		if err := s.repo.InsertAt(ctx, treeID, req.Parent, len(siblings), req.Item); err != nil {
			return err
		}
		items, err = s.repo.ListChildren(ctx, treeID, req.Parent)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("item created",
		"tree_id", treeID,
		"user_id", domain.UserID(ctx),
		"item_id", req.Item.ID,
		"parent", req.Parent.String(),
		"folder", req.Folder,
	)
	s.feed.Publish(treeID,
		event.ItemCreated{BranchID: req.Parent, Item: req.Item, Folder: req.Folder},
		event.BranchReconcile{BranchID: req.Parent, Items: items},
	)
	return items, nil
}

// DeleteItem removes an item. Folders take their whole subtree with them;
// deleting a plain item that still has children is rejected.
func (s *treeService) DeleteItem(ctx context.Context, treeID string, req *services.DeleteItemRequest) ([]tree.Node, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}
	if err := validation.Validate(req.ItemID, validation.Required); err != nil {
		return nil, fmt.Errorf("%w: item id: %v", domain.ErrValidation, err)
	}
	if err := s.sim.apply(ctx, "delete"); err != nil {
		return nil, err
	}

	var items []tree.Node
	var removed int
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetNode(ctx, treeID, req.ItemID)
		if err != nil {
			return err
		}
		if current.Parent != req.Branch {
			s.logger.Debug("delete branch differs from stored parent",
				"item_id", req.ItemID,
				"claimed", req.Branch.String(),
				"stored", current.Parent.String(),
			)
		}
		if !req.Folder {
			children, err := s.repo.ListChildren(ctx, treeID, tree.Branch(req.ItemID))
			if err != nil {
				return err
			}
			if len(children) > 0 {
				return &domain.ValidationError{Message: fmt.Sprintf("item %q has children; delete it as a folder", req.ItemID)}
			}
		}
		if removed, err = s.repo.Delete(ctx, treeID, req.ItemID); err != nil {
			return err
		}
		req.Branch = current.Parent
		items, err = s.repo.ListChildren(ctx, treeID, current.Parent)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("item deleted",
		"tree_id", treeID,
		"user_id", domain.UserID(ctx),
		"item_id", req.ItemID,
		"branch", req.Branch.String(),
		"removed", removed,
	)
	s.feed.Publish(treeID,
		event.ItemDeleted{BranchID: req.Branch, ItemID: req.ItemID, Folder: req.Folder},
		event.BranchReconcile{BranchID: req.Branch, Items: items},
	)
	return items, nil
}

// SetOpenState persists whether an item is expanded
func (s *treeService) SetOpenState(ctx context.Context, treeID, itemID string, isOpen bool) error {
	if err := validateTreeID(treeID); err != nil {
		return err
	}

	var parent tree.BranchID
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetNode(ctx, treeID, itemID)
		if err != nil {
			return err
		}
		parent = current.Parent
		return s.repo.SetOpen(ctx, treeID, itemID, isOpen)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("open state saved", "tree_id", treeID, "user_id", domain.UserID(ctx), "item_id", itemID, "is_open", isOpen)
	s.feed.Publish(treeID, event.OpenStateChanged{BranchID: parent, ItemID: itemID, IsOpen: isOpen})
	return nil
}

// GetTree exports the whole tree in nested form
func (s *treeService) GetTree(ctx context.Context, treeID string) ([]tree.NodeData, error) {
	if err := validateTreeID(treeID); err != nil {
		return nil, err
	}
	branches, err := s.repo.AllNodes(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return treeops.Nest(branches), nil
}

// Seed replaces a tree with nested data
func (s *treeService) Seed(ctx context.Context, treeID string, data []tree.NodeData) error {
	if err := validateTreeID(treeID); err != nil {
		return err
	}
	flat, err := treeops.Flatten(data)
	if err != nil {
		return err
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		return s.repo.ReplaceTree(ctx, treeID, flat.Branches)
	})
	if err != nil {
		return err
	}

	s.logger.Info("tree seeded", "tree_id", treeID, "user_id", domain.UserID(ctx), "items", len(flat.OpenState))

	changes := make([]event.Event, 0, len(flat.Branches))
	for branch, items := range flat.Branches {
		changes = append(changes, event.BranchReconcile{BranchID: branch, Items: items})
	}
	s.feed.Publish(treeID, changes...)
	return nil
}

// ListTrees returns the ids of non-empty trees
func (s *treeService) ListTrees(ctx context.Context) ([]string, error) {
	return s.repo.Trees(ctx)
}

// Watch subscribes to the change feed of a tree
func (s *treeService) Watch(treeID string, listener event.Listener) func() {
	return s.feed.Watch(treeID, listener)
}
