package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"cleantree/internal/domain/models/tree"
)

// OpState is the lifecycle of one optimistic operation.
type OpState int

const (
	Idle OpState = iota
	Optimistic
	Confirmed
	RolledBack
)

func (s OpState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Optimistic:
		return "optimistic"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// OpKind names what an operation does, for logs.
type OpKind string

const (
	OpMove   OpKind = "move"
	OpCreate OpKind = "create"
	OpDelete OpKind = "delete"
)

// Mutation is the pure local edit an operation applied to one branch.
type Mutation func(items []tree.Node) []tree.Node

type effect struct {
	snapshot []tree.Node
	mutate   Mutation
}

// Operation tracks one optimistic edit from the moment it is applied locally
// until its confirmation settles. Each operation owns the snapshots of every
// branch it touched.
type Operation struct {
	ID   string
	Kind OpKind
	Lane tree.BranchID

	seq       uint64
	state     OpState
	scheduled bool
	effects   map[tree.BranchID]*effect
	order     []tree.BranchID
}

// State returns the lifecycle state
func (op *Operation) State() OpState { return op.state }

// Touch applies mutate to before, records before as the snapshot for branch,
// and returns the new list. Touching the same branch twice keeps the first
// snapshot and composes the mutations.
func (op *Operation) Touch(branch tree.BranchID, before []tree.Node, mutate Mutation) []tree.Node {
	after := mutate(tree.Clone(before))
	if eff, ok := op.effects[branch]; ok {
		prev := eff.mutate
		eff.mutate = func(items []tree.Node) []tree.Node { return mutate(prev(items)) }
	} else {
		op.effects[branch] = &effect{snapshot: tree.Clone(before), mutate: mutate}
		op.order = append(op.order, branch)
	}
	if op.state == Idle {
		op.state = Optimistic
	}
	return after
}

// Snapshot returns the list branch held immediately before this operation.
func (op *Operation) Snapshot(branch tree.BranchID) ([]tree.Node, bool) {
	eff, ok := op.effects[branch]
	if !ok {
		return nil, false
	}
	return tree.Clone(eff.snapshot), true
}

// Snapshots returns every recorded snapshot, keyed by branch.
func (op *Operation) Snapshots() map[tree.BranchID][]tree.Node {
	out := make(map[tree.BranchID][]tree.Node, len(op.effects))
	for branch, eff := range op.effects {
		out[branch] = tree.Clone(eff.snapshot)
	}
	return out
}

// Touched reports whether the operation edited branch.
func (op *Operation) Touched(branch tree.BranchID) bool {
	_, ok := op.effects[branch]
	return ok
}

// Begin registers a new operation. Confirmations for ops on the same lane
// run one at a time in Begin order.
func (st *State) Begin(kind OpKind, lane tree.BranchID) *Operation {
	st.nextSeq++
	op := &Operation{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Lane:    lane,
		seq:     st.nextSeq,
		effects: make(map[tree.BranchID]*effect),
	}
	st.ops = append(st.ops, op)
	return op
}

// Settle closes op with outcome (Confirmed or RolledBack). base holds, per
// branch, the list the outcome establishes: authoritative lists on success,
// the op's own snapshots on failure. The returned map is what each of those
// branches should now show: base with every later unsettled operation's
// mutation replayed on top. Later operations are rebased so their snapshots
// describe the new base rather than a list that no longer exists.
func (st *State) Settle(op *Operation, outcome OpState, base map[tree.BranchID][]tree.Node) map[tree.BranchID][]tree.Node {
	if op.state == Confirmed || op.state == RolledBack {
		return map[tree.BranchID][]tree.Node{}
	}
	op.state = outcome
	st.removeOp(op)

	out := make(map[tree.BranchID][]tree.Node, len(base))
	for branch, items := range base {
		current := tree.Clone(items)
		for _, later := range st.ops {
			if later.seq < op.seq || later.state != Optimistic {
				continue
			}
			eff, ok := later.effects[branch]
			if !ok {
				continue
			}
			eff.snapshot = tree.Clone(current)
			current = eff.mutate(current)
		}
		out[branch] = current
	}

	st.logger.Debug("operation settled",
		"op_id", op.ID,
		"kind", op.Kind,
		"state", op.state.String(),
		"branches", len(out),
	)
	return out
}

// Discard drops an operation that turned out to have nothing to confirm.
func (st *State) Discard(op *Operation) {
	if op.state == Confirmed || op.state == RolledBack {
		return
	}
	op.state = Confirmed
	st.removeOp(op)
}

func (st *State) removeOp(op *Operation) {
	for i, o := range st.ops {
		if o == op {
			st.ops = append(st.ops[:i:i], st.ops[i+1:]...)
			return
		}
	}
}

// Pending returns the number of unsettled operations.
func (st *State) Pending() int { return len(st.ops) }

type task struct {
	op     *Operation
	call   func(ctx context.Context) error
	settle func(st *State, err error)
}

type lane struct {
	busy  bool
	queue []task
}

// Confirm schedules call for op on op's lane. call runs without the session
// held; settle runs with it held once call returns. A session closed in the
// meantime drops the result.
func (st *State) Confirm(op *Operation, call func(ctx context.Context) error, settle func(st *State, err error)) {
	op.scheduled = true
	l, ok := st.lanes[op.Lane]
	if !ok {
		l = &lane{}
		st.lanes[op.Lane] = l
	}
	l.queue = append(l.queue, task{op: op, call: call, settle: settle})
	if !l.busy {
		st.startNext(op.Lane, l)
	}
}

// startNext must be called with the session held
func (st *State) startNext(laneID tree.BranchID, l *lane) {
	if len(l.queue) == 0 {
		l.busy = false
		delete(st.lanes, laneID)
		return
	}
	t := l.queue[0]
	l.queue = l.queue[1:]
	l.busy = true

	started := time.Now()
	st.Go(t.call, func(st *State, err error) {
		st.logger.Debug("confirmation returned",
			"op_id", t.op.ID,
			"lane", laneID.String(),
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		t.settle(st, err)
		st.startNext(laneID, l)
	})
}

// Go runs call on its own goroutine without the session held, bounded by the
// confirm timeout, then runs settle with the session held. Nothing settles
// after Close. Session.Wait covers every call started here.
func (st *State) Go(call func(ctx context.Context) error, settle func(st *State, err error)) {
	s := st.session
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx := s.ctx
		if s.confirmTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.confirmTimeout)
			defer cancel()
		}

		err := call(ctx)
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ctx.Err()
		}

		s.TryExec(func(st *State) { settle(st, err) })
	}()
}
