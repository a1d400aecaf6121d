package branch

import (
	"context"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

func (b *Branch) onDrop(st *session.State, req tree.MoveRequest) {
	op := st.DropOperation()
	domain.Invariant(op != nil, "drop for %s delivered outside a session dispatch", req.ItemID)

	isSource := req.SourceBranchID == b.id
	isTarget := req.TargetBranchID == b.id

	if isSource && isTarget {
		b.setItems(st, op.Touch(b.id, b.items, reorder(req.ItemID, req.TargetIndex)))
		b.reconcileMove(st, op, req.Args())
		return
	}

	if isSource {
		b.setItems(st, op.Touch(b.id, b.items, removeID(req.ItemID)))
	}

	if isTarget {
		if b.contains(req.ItemID) {
			b.logger.Warn("dropped item already present", "item_id", req.ItemID)
			return
		}
		b.setItems(st, op.Touch(b.id, b.items, insertAt(req.Item, req.TargetIndex)))
		st.Dispatch(event.ItemAdded{BranchID: b.id, ItemID: req.ItemID})
		b.reconcileMove(st, op, req.Args())
	}
}

// consumePending inserts drops that targeted this branch before it mounted.
func (b *Branch) consumePending(st *session.State) {
	for _, p := range st.ConsumePending(b.id) {
		if b.contains(p.Item.ID) {
			st.Discard(p.Op)
			continue
		}
		b.logger.Debug("pending drop consumed",
			"item_id", p.Item.ID,
			"index", p.Index,
			"source", p.SourceBranchID.String(),
		)
		b.setItems(st, p.Op.Touch(b.id, b.items, insertAt(p.Item, p.Index)))
		st.Dispatch(event.ItemAdded{BranchID: b.id, ItemID: p.Item.ID})
		b.reconcileMove(st, p.Op, tree.MoveArgs{
			ItemID:         p.Item.ID,
			SourceBranchID: p.SourceBranchID,
			TargetBranchID: b.id,
			TargetIndex:    p.Index,
		})
	}
}

// reconcileMove confirms op against the backing store. On success the
// returned lists replace this branch and the source; on failure both go back
// to their snapshots. The source is always reached through a BranchReconcile
// event.
func (b *Branch) reconcileMove(st *session.State, op *session.Operation, args tree.MoveArgs) {
	if b.handlers.MoveItem == nil {
		st.Discard(op)
		return
	}
	moveItem := b.handlers.MoveItem
	sameBranch := args.SameBranch()

	b.movesInFlight++
	var result tree.MoveResult
	st.Confirm(op,
		func(ctx context.Context) error {
			var err error
			result, err = moveItem(ctx, args)
			return err
		},
		func(st *session.State, err error) {
			b.movesInFlight--

			var lists map[tree.BranchID][]tree.Node
			if err != nil {
				b.logger.Warn("move confirmation failed, rolling back",
					"item_id", args.ItemID,
					"source", args.SourceBranchID.String(),
					"target", args.TargetBranchID.String(),
					"op_id", op.ID,
					"error", err,
				)
				lists = st.Settle(op, session.RolledBack, op.Snapshots())
			} else {
				base := map[tree.BranchID][]tree.Node{
					args.TargetBranchID: tree.Clone(result.TargetBranchItems),
				}
				if !sameBranch {
					base[args.SourceBranchID] = tree.Clone(result.SourceBranchItems)
				}
				lists = st.Settle(op, session.Confirmed, base)
			}

			if items, ok := lists[args.TargetBranchID]; ok {
				b.commit(st, items)
			}
			if !sameBranch {
				if items, ok := lists[args.SourceBranchID]; ok {
					st.Dispatch(event.BranchReconcile{BranchID: args.SourceBranchID, Items: items})
				}
			}
			b.endLoadIfIdle()
		},
	)
}
