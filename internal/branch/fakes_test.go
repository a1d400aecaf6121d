package branch

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

// pendingCall is a confirmation the test has not answered yet.
type pendingCall[A, R any] struct {
	args  A
	reply chan callReply[R]
}

type callReply[R any] struct {
	result R
	err    error
}

func (p pendingCall[A, R]) succeed(result R) { p.reply <- callReply[R]{result: result} }
func (p pendingCall[A, R]) fail(err error)   { p.reply <- callReply[R]{err: err} }

// blocking turns every call into a pendingCall the test answers explicitly.
type blocking[A, R any] struct {
	calls chan pendingCall[A, R]
}

func newBlocking[A, R any]() *blocking[A, R] {
	return &blocking[A, R]{calls: make(chan pendingCall[A, R], 16)}
}

func (b *blocking[A, R]) call(ctx context.Context, args A) (R, error) {
	p := pendingCall[A, R]{args: args, reply: make(chan callReply[R], 1)}
	b.calls <- p
	select {
	case r := <-p.reply:
		return r.result, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (b *blocking[A, R]) next(t *testing.T) pendingCall[A, R] {
	t.Helper()
	select {
	case p := <-b.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a confirmation call")
		return pendingCall[A, R]{}
	}
}

func (b *blocking[A, R]) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-b.calls:
		t.Fatalf("unexpected confirmation call with %+v", p.args)
	case <-time.After(20 * time.Millisecond):
	}
}

type mover = blocking[tree.MoveArgs, tree.MoveResult]

func newMover() *mover { return newBlocking[tree.MoveArgs, tree.MoveResult]() }

type listArgs struct {
	branch tree.BranchID
	itemID string
}

type lister = blocking[listArgs, []tree.Node]

func newLister() *lister { return newBlocking[listArgs, []tree.Node]() }

// recorder keeps every event dispatched on a session.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(sess *session.Session) *recorder {
	r := &recorder{}
	sess.Subscribe(func(ev event.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func ofType[E event.Event](r *recorder) []E {
	var out []E
	for _, ev := range r.all() {
		if e, ok := ev.(E); ok {
			out = append(out, e)
		}
	}
	return out
}

func newSession(t *testing.T, seed []tree.NodeData) *session.Session {
	t.Helper()
	sess, err := session.New(session.Config{Seed: seed})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func nodes(ids ...string) []tree.Node {
	out := make([]tree.Node, len(ids))
	for i, id := range ids {
		out[i] = tree.Node{ID: id}
	}
	return out
}

func leaves(ids ...string) []tree.NodeData {
	out := make([]tree.NodeData, len(ids))
	for i, id := range ids {
		out[i] = tree.NodeData{ID: id}
	}
	return out
}

func drop(itemID string, source, target tree.BranchID, index int) event.ItemDropRequested {
	return dropNode(tree.Node{ID: itemID}, source, target, index)
}

func dropNode(item tree.Node, source, target tree.BranchID, index int) event.ItemDropRequested {
	return event.ItemDropRequested{Request: tree.MoveRequest{
		ItemID:         item.ID,
		Item:           item,
		SourceBranchID: source,
		TargetBranchID: target,
		TargetIndex:    index,
	}}
}

// logBuffer collects session logs so tests can wait for a background step
// that has no other observable effect.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLoggedSession(t *testing.T, seed []tree.NodeData) (*session.Session, *logBuffer) {
	t.Helper()
	logs := &logBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sess, err := session.New(session.Config{Seed: seed, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess, logs
}
