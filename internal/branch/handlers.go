package branch

import (
	"context"
	"log/slog"
	"time"

	"cleantree/internal/domain/models/tree"
)

// Handlers are the injected backing-store calls. Every field is optional: a
// nil confirmation means the optimistic result stands as is.
type Handlers struct {
	LoadChildren func(ctx context.Context, id tree.BranchID) ([]tree.Node, error)
	MoveItem     func(ctx context.Context, args tree.MoveArgs) (tree.MoveResult, error)
	CreateItem   func(ctx context.Context, parent tree.BranchID, item tree.Node) ([]tree.Node, error)
	CreateFolder func(ctx context.Context, parent tree.BranchID, folder tree.Node) ([]tree.Node, error)
	DeleteItem   func(ctx context.Context, itemID string, branch tree.BranchID) ([]tree.Node, error)
	DeleteFolder func(ctx context.Context, folderID string, branch tree.BranchID) ([]tree.Node, error)

	// OnOpenStateChange is fire-and-forget. It runs with the session held
	// and must not block.
	OnOpenStateChange func(itemID string, isOpen bool)
}

// Backend is a backing store that can serve every handler.
type Backend interface {
	LoadChildren(ctx context.Context, id tree.BranchID) ([]tree.Node, error)
	MoveItem(ctx context.Context, args tree.MoveArgs) (tree.MoveResult, error)
	CreateItem(ctx context.Context, parent tree.BranchID, item tree.Node) ([]tree.Node, error)
	CreateFolder(ctx context.Context, parent tree.BranchID, folder tree.Node) ([]tree.Node, error)
	DeleteItem(ctx context.Context, itemID string, branch tree.BranchID) ([]tree.Node, error)
	DeleteFolder(ctx context.Context, folderID string, branch tree.BranchID) ([]tree.Node, error)
	SetOpenState(ctx context.Context, itemID string, isOpen bool) error
}

// openStateTimeout bounds the background open-state write.
const openStateTimeout = 10 * time.Second

// HandlersFor wires every handler to backend. Open-state changes are
// persisted on a background goroutine; failures are only logged.
func HandlersFor(backend Backend, logger *slog.Logger) Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return Handlers{
		LoadChildren: backend.LoadChildren,
		MoveItem:     backend.MoveItem,
		CreateItem:   backend.CreateItem,
		CreateFolder: backend.CreateFolder,
		DeleteItem:   backend.DeleteItem,
		DeleteFolder: backend.DeleteFolder,
		OnOpenStateChange: func(itemID string, isOpen bool) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), openStateTimeout)
				defer cancel()
				if err := backend.SetOpenState(ctx, itemID, isOpen); err != nil {
					logger.Warn("failed to persist open state",
						"item_id", itemID,
						"is_open", isOpen,
						"error", err,
					)
				}
			}()
		},
	}
}
