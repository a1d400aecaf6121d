package branch

import (
	"context"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/session"
)

// startLoad fetches children once, when the branch mounts with nothing in it.
func (b *Branch) startLoad(st *session.State) {
	if b.handlers.LoadChildren == nil || b.hasLoaded || len(b.items) > 0 {
		return
	}
	b.hasLoaded = true
	b.isLoading = true
	load := b.handlers.LoadChildren
	id := b.id

	var loaded []tree.Node
	st.Go(
		func(ctx context.Context) error {
			var err error
			loaded, err = load(ctx, id)
			return err
		},
		func(st *session.State, err error) {
			b.loadDone = true
			switch {
			case err != nil:
				b.logger.Warn("failed to load children", "error", err)
			case b.movesInFlight > 0:
				// a confirmation owns the list now
				b.logger.Debug("children load ignored, move in flight", "loaded", len(loaded))
			case !b.live:
				b.logger.Debug("children load ignored, branch unmounted", "loaded", len(loaded))
			default:
				b.setItems(st, mergeLoaded(loaded, b.items))
			}
			b.endLoadIfIdle()
		},
	)
}

// endLoadIfIdle clears the loading flag once the load has returned and no
// move confirmation is outstanding.
func (b *Branch) endLoadIfIdle() {
	if b.loadDone && b.movesInFlight == 0 {
		b.isLoading = false
	}
}
