package handler

import (
	"log/slog"
	"net/http"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/services"
	"cleantree/internal/httputil"
)

// TreeHandler handles HTTP requests for tree operations
type TreeHandler struct {
	treeService services.TreeService
	logger      *slog.Logger
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(treeService services.TreeService, logger *slog.Logger) *TreeHandler {
	return &TreeHandler{
		treeService: treeService,
		logger:      logger,
	}
}

// Register mounts every tree route on mux.
func (h *TreeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /api/trees", h.ListTrees)
	mux.HandleFunc("GET /api/trees/{tree}", h.GetTree)
	mux.HandleFunc("PUT /api/trees/{tree}", h.SeedTree)
	mux.HandleFunc("GET /api/trees/{tree}/branches/{branch}/children", h.LoadChildren)
	mux.HandleFunc("POST /api/trees/{tree}/branches/{branch}/items", h.CreateItem)
	mux.HandleFunc("DELETE /api/trees/{tree}/branches/{branch}/items/{item}", h.DeleteItem)
	mux.HandleFunc("POST /api/trees/{tree}/moves", h.MoveItem)
	mux.HandleFunc("PUT /api/trees/{tree}/items/{item}/open", h.SetOpenState)
}

// HealthCheck reports liveness
// GET /health
func (h *TreeHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTrees returns the ids of non-empty trees
// GET /api/trees
func (h *TreeHandler) ListTrees(w http.ResponseWriter, r *http.Request) {
	ids, err := h.treeService.ListTrees(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string][]string{"trees": ids})
}

// GetTree returns the nested tree
// GET /api/trees/{tree}
func (h *TreeHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	data, err := h.treeService.GetTree(r.Context(), r.PathValue("tree"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, data)
}

// SeedTree replaces the tree with nested seed data
// PUT /api/trees/{tree}
func (h *TreeHandler) SeedTree(w http.ResponseWriter, r *http.Request) {
	var data []tree.NodeData
	if err := httputil.ParseJSON(w, r, &data); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.treeService.Seed(r.Context(), r.PathValue("tree"), data); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadChildren returns the ordered children of a branch
// GET /api/trees/{tree}/branches/{branch}/children
func (h *TreeHandler) LoadChildren(w http.ResponseWriter, r *http.Request) {
	items, err := h.treeService.LoadChildren(r.Context(), r.PathValue("tree"), branchParam(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, items)
}

// MoveItem confirms a drop
// POST /api/trees/{tree}/moves
func (h *TreeHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	var args tree.MoveArgs
	if err := httputil.ParseJSON(w, r, &args); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.treeService.MoveItem(r.Context(), r.PathValue("tree"), args)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// CreateItem appends an item or, with ?folder=true, a folder
// POST /api/trees/{tree}/branches/{branch}/items
// Returns 201 with the branch list, 409 if the id exists
func (h *TreeHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item tree.Node
	if err := httputil.ParseJSON(w, r, &item); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.treeService.CreateItem(r.Context(), r.PathValue("tree"), &services.CreateItemRequest{
		Parent: branchParam(r),
		Item:   item,
		Folder: httputil.QueryBool(r, "folder"),
	})
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, items)
}

// DeleteItem removes an item or, with ?folder=true, a folder and its subtree
// DELETE /api/trees/{tree}/branches/{branch}/items/{item}
func (h *TreeHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	items, err := h.treeService.DeleteItem(r.Context(), r.PathValue("tree"), &services.DeleteItemRequest{
		Branch: branchParam(r),
		ItemID: r.PathValue("item"),
		Folder: httputil.QueryBool(r, "folder"),
	})
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, items)
}

// OpenStateRequest is the body of SetOpenState
type OpenStateRequest struct {
	IsOpen bool `json:"isOpen"`
}

// SetOpenState persists expand/collapse
// PUT /api/trees/{tree}/items/{item}/open
func (h *TreeHandler) SetOpenState(w http.ResponseWriter, r *http.Request) {
	var req OpenStateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.treeService.SetOpenState(r.Context(), r.PathValue("tree"), r.PathValue("item"), req.IsOpen); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
