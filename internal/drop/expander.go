package drop

import (
	"sync"
	"time"

	"cleantree/internal/branch"
	"cleantree/internal/config"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/session"
)

// Expander opens a closed folder after the pointer has hovered over it with
// a make-child instruction for a while. At most one timer runs at a time.
type Expander struct {
	sess  *session.Session
	delay time.Duration

	mutex   sync.Mutex
	hovered string
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// NewExpander creates an expander. A non-positive delay uses the default.
func NewExpander(sess *session.Session, delay time.Duration) *Expander {
	if delay <= 0 {
		delay = config.DefaultAutoExpandDelay
	}
	return &Expander{sess: domain.MustProvide(sess, "session"), delay: delay}
}

// Hover reports the instruction currently shown over itemID. A make-child
// over a closed folder with children starts the timer; anything else
// cancels it.
func (e *Expander) Hover(itemID string, inst tree.Instruction) {
	if inst.Type != tree.MakeChild || inst.Blocked {
		e.cancel()
		return
	}

	// read the session before taking the expander lock; fire takes them in
	// the opposite order
	var eligible bool
	e.sess.TryExec(func(st *session.State) {
		item, ok := st.Item(itemID)
		eligible = ok && !item.IsOpen && st.ItemHasChildren(itemID)
	})

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return
	}
	if e.timer != nil && e.hovered == itemID {
		return
	}
	e.stopLocked()
	if !eligible {
		return
	}
	e.hovered = itemID
	gen := e.gen
	e.timer = time.AfterFunc(e.delay, func() { e.fire(itemID, gen) })
}

// Leave cancels the timer when the pointer leaves the row.
func (e *Expander) Leave() { e.cancel() }

// Dropped cancels the timer when the drop happens.
func (e *Expander) Dropped() { e.cancel() }

// Close cancels the timer for good. Later calls are no-ops.
func (e *Expander) Close() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stopLocked()
	e.closed = true
}

// Pending reports whether a timer is running.
func (e *Expander) Pending() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.timer != nil
}

func (e *Expander) cancel() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stopLocked()
}

func (e *Expander) stopLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.hovered = ""
	e.gen++
}

func (e *Expander) fire(itemID string, gen uint64) {
	e.sess.TryExec(func(st *session.State) {
		e.mutex.Lock()
		current := !e.closed && e.gen == gen
		if current {
			e.timer = nil
			e.hovered = ""
		}
		e.mutex.Unlock()
		if !current {
			return
		}

		owner, ok := st.FindItemBranch(itemID)
		if !ok {
			return
		}
		if b, ok := branch.Lookup(st, owner); ok {
			st.Logger().Debug("auto-expanding hovered folder", "item_id", itemID)
			b.ExpandLocked(st, itemID)
		}
	})
}
