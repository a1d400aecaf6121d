// Package memory is the in-process store used by tests and by the demo
// server when no database is configured.
package memory

import (
	"context"
	"maps"
	"sync"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/repositories"
)

type treeData struct {
	branches map[tree.BranchID][]tree.Node
	parent   map[string]tree.BranchID
}

func newTreeData() *treeData {
	return &treeData{
		branches: make(map[tree.BranchID][]tree.Node),
		parent:   make(map[string]tree.BranchID),
	}
}

func (t *treeData) clone() *treeData {
	out := &treeData{
		branches: make(map[tree.BranchID][]tree.Node, len(t.branches)),
		parent:   maps.Clone(t.parent),
	}
	for id, items := range t.branches {
		out.branches[id] = tree.Clone(items)
	}
	return out
}

// Store holds every tree in memory.
type Store struct {
	mutex sync.Mutex
	trees map[string]*treeData

	// txMutex serializes transactions
	txMutex sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{trees: make(map[string]*treeData)}
}

// tree returns the data for treeID, creating it when create is set.
// Callers hold s.mutex.
func (s *Store) tree(treeID string, create bool) *treeData {
	t, ok := s.trees[treeID]
	if !ok && create {
		t = newTreeData()
		s.trees[treeID] = t
	}
	return t
}

func (s *Store) snapshot() map[string]*treeData {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make(map[string]*treeData, len(s.trees))
	for id, t := range s.trees {
		out[id] = t.clone()
	}
	return out
}

func (s *Store) restore(trees map[string]*treeData) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.trees = trees
}

// TransactionManager gives the memory store all-or-nothing semantics: the
// store is snapshotted before fn runs and restored if fn fails.
type TransactionManager struct {
	store *Store
}

// NewTransactionManager creates a transaction manager over store
func NewTransactionManager(store *Store) repositories.TransactionManager {
	return &TransactionManager{store: store}
}

// ExecTx runs fn with other transactions excluded. Writes made outside a
// transaction while fn runs are lost if fn fails.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	tm.store.txMutex.Lock()
	defer tm.store.txMutex.Unlock()

	before := tm.store.snapshot()
	if err := fn(ctx); err != nil {
		tm.store.restore(before)
		return err
	}
	return nil
}
