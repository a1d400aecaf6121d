// Package session owns the shared state of one tree: the branch registry,
// saved and seeded branch contents, the queue of drops addressed to unmounted
// branches, the optimistic operation ledger and the event bus.
//
// All mutation happens with the session held. Injected confirmation calls run
// on their own goroutines without it and re-take it to settle.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/treeops"
)

// Config configures a session.
type Config struct {
	// Seed is the nested initial tree. It is flattened once.
	Seed []tree.NodeData
	// ConfirmTimeout bounds each confirmation call. Zero disables it.
	ConfirmTimeout time.Duration
	Logger         *slog.Logger
}

// Session is the explicitly constructed context shared by every branch of one
// tree. Close it when the tree goes away.
type Session struct {
	ID string

	mutex  sync.Mutex
	closed bool
	state  *State

	ctx            context.Context
	cancel         context.CancelFunc
	inflight       sync.WaitGroup
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// New creates a session. The seed is validated and flattened here.
func New(cfg Config) (*Session, error) {
	flat, err := treeops.Flatten(cfg.Seed)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:             uuid.NewString(),
		ctx:            ctx,
		cancel:         cancel,
		confirmTimeout: cfg.ConfirmTimeout,
	}
	s.logger = logger.With("session_id", s.ID)
	s.state = newState(s, flat)

	s.logger.Debug("session created",
		"seed_branches", len(flat.Branches),
		"confirm_timeout", cfg.ConfirmTimeout,
	)
	return s, nil
}

// Exec runs fn with the session held. Bus listeners already run held and must
// use the State they were given rather than calling back into Exec.
func (s *Session) Exec(fn func(st *State)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	domain.Invariant(!s.closed, "session %s used after close", s.ID)
	fn(s.state)
}

// TryExec is Exec for late callers (timers, settling confirmations) that
// should quietly do nothing once the session is closed.
func (s *Session) TryExec(fn func(st *State)) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false
	}
	fn(s.state)
	return true
}

// Subscribe adds a bus listener. The listener runs with the session held.
func (s *Session) Subscribe(listener event.Listener) (unsubscribe func()) {
	return s.state.bus.Subscribe(listener)
}

// Dispatch delivers ev with the session held.
func (s *Session) Dispatch(ev event.Event) {
	s.Exec(func(st *State) { st.Dispatch(ev) })
}

// FindItemBranch returns the live branch holding itemID.
func (s *Session) FindItemBranch(itemID string) (branch tree.BranchID, ok bool) {
	s.Exec(func(st *State) { branch, ok = st.FindItemBranch(itemID) })
	return branch, ok
}

// Item returns the live node for itemID.
func (s *Session) Item(itemID string) (node tree.Node, ok bool) {
	s.Exec(func(st *State) { node, ok = st.Item(itemID) })
	return node, ok
}

// PathToItem returns the ancestor ids of itemID, outermost first.
func (s *Session) PathToItem(itemID string) (path []string, ok bool) {
	s.Exec(func(st *State) { path, ok = st.PathToItem(itemID) })
	return path, ok
}

// ItemHasChildren reports whether itemID has children anywhere the session
// knows about.
func (s *Session) ItemHasChildren(itemID string) (has bool) {
	s.Exec(func(st *State) { has = st.ItemHasChildren(itemID) })
	return has
}

// BranchItems returns a copy of a live branch's items.
func (s *Session) BranchItems(id tree.BranchID) (items []tree.Node, ok bool) {
	s.Exec(func(st *State) { items, ok = st.BranchItems(id) })
	return items, ok
}

// PendingOperations returns the number of unsettled optimistic operations.
func (s *Session) PendingOperations() (n int) {
	s.Exec(func(st *State) { n = st.Pending() })
	return n
}

// Context is cancelled on Close.
func (s *Session) Context() context.Context { return s.ctx }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Wait blocks until every in-flight confirmation has returned and settled.
// It must not be called with the session held.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close cancels outstanding confirmations and discards their results. It is
// safe to call more than once.
func (s *Session) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	s.closed = true
	pending := len(s.state.ops)
	s.state.ops = nil
	s.state.lanes = make(map[tree.BranchID]*lane)
	s.mutex.Unlock()

	s.cancel()
	s.logger.Debug("session closed", "discarded_operations", pending)
}
