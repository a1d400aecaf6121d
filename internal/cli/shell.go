package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cleantree/internal/branch"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/drop"
	"cleantree/internal/event"
	"cleantree/internal/handler"
	"cleantree/internal/session"
	"cleantree/internal/view"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

const shellHelp = `Commands:
  ls                          show the visible tree
  open|close|toggle <id>      expand or collapse a folder
  mv <id> above|below <target>
  mv <id> into <target>       make <id> the first child of <target>
  mv <id> after <target> <level>
                              reparent below <target> at depth <level>
  hover <id>                  rest a drag over <id>; it opens after the delay
  mk <parent> [id]            create an item (parent "root" for top level)
  mkdir <parent> [id]         create a folder
  rm <id> | rmdir <id>        delete an item or a folder
  wait                        block until every confirmation has settled
  pending                     number of unconfirmed operations
  help | quit`

// shell is an interactive, optimistic session against the server. Edits
// show up at once and are confirmed in the background; changes made by other
// clients arrive over the feed and are applied when nothing is in flight.
type shell struct {
	app      *app
	sess     *session.Session
	view     *view.View
	resolver *drop.Resolver
	expander *drop.Expander
	out      io.Writer
	color    bool
}

func newShellCmd(a *app) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Edit the tree interactively with optimistic updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			loadCtx, loadCancel := commandContext(cmd)
			data, err := a.client.GetTree(loadCtx)
			loadCancel()
			if err != nil {
				return err
			}

			sess, err := session.New(session.Config{
				Seed:           data,
				ConfirmTimeout: a.duration(keyConfirmTimeout),
				Logger:         a.logger.With("tree_id", a.client.TreeID()),
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			s := &shell{
				app:      a,
				sess:     sess,
				view:     view.New(sess, branch.HandlersFor(a.client, a.logger)),
				resolver: drop.NewResolver(sess),
				expander: drop.NewExpander(sess, a.duration(keyAutoExpandDelay)),
				out:      cmd.OutOrStdout(),
				color:    !noColor,
			}
			defer s.view.Close()
			defer s.expander.Close()

			go s.follow(ctx)
			return s.run(cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	return cmd
}

// follow applies changes from other clients. Local confirmations already
// reconcile their own branches, so remote lists only land when idle.
func (s *shell) follow(ctx context.Context) {
	err := s.app.client.Watch(ctx, func(e event.Event) {
		reconcile, ok := e.(event.BranchReconcile)
		if !ok {
			return
		}
		// The feed can outlive the session by one event
		s.sess.TryExec(func(st *session.State) {
			if st.Pending() == 0 {
				st.Dispatch(reconcile)
			}
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.app.logger.Warn("stopped following tree feed", "error", err)
	}
}

func (s *shell) paint(color, text string) string {
	if !s.color {
		return text
	}
	return color + text + colorReset
}

func (s *shell) run(in io.Reader) error {
	fmt.Fprintln(s.out, s.paint(colorCyan, "tree "+s.app.client.TreeID()+" (type help for commands)"))
	s.render()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.paint(colorBlue, "> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			s.sess.Wait()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		s.app.logger.Debug("shell command", "command", fields[0], "args", fields[1:])

		if fields[0] == "quit" || fields[0] == "exit" {
			s.sess.Wait()
			return nil
		}
		if err := s.exec(fields[0], fields[1:]); err != nil {
			fmt.Fprintln(s.out, s.paint(colorRed, "error: "+err.Error()))
			continue
		}
	}
}

func (s *shell) exec(name string, args []string) error {
	switch name {
	case "help":
		fmt.Fprintln(s.out, shellHelp)
	case "ls":
		s.render()
	case "open", "close", "toggle":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id>", name)
		}
		b, err := s.owner(args[0])
		if err != nil {
			return err
		}
		switch name {
		case "open":
			b.Expand(args[0])
		case "close":
			b.Collapse(args[0])
		default:
			b.Toggle(args[0])
		}
		s.render()
	case "mv":
		if err := s.move(args); err != nil {
			return err
		}
		s.render()
	case "hover":
		if len(args) != 1 {
			return errors.New("usage: hover <id>")
		}
		s.expander.Hover(args[0], tree.Instruction{Type: tree.MakeChild})
		fmt.Fprintln(s.out, s.paint(colorYellow, "hovering over "+args[0]))
	case "mk", "mkdir":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: %s <parent> [id]", name)
		}
		if err := s.create(args, name == "mkdir"); err != nil {
			return err
		}
		s.render()
	case "rm", "rmdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id>", name)
		}
		b, err := s.owner(args[0])
		if err != nil {
			return err
		}
		if name == "rmdir" {
			b.DeleteFolder(args[0])
		} else {
			b.DeleteItem(args[0])
		}
		s.render()
	case "wait":
		s.sess.Wait()
		s.render()
	case "pending":
		fmt.Fprintln(s.out, s.sess.PendingOperations())
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}

// owner returns the mounted branch holding itemID.
func (s *shell) owner(itemID string) (*branch.Branch, error) {
	id, ok := s.sess.FindItemBranch(itemID)
	if !ok {
		return nil, fmt.Errorf("%s is not visible", itemID)
	}
	b, ok := s.view.Branch(id)
	if !ok {
		return nil, fmt.Errorf("branch of %s is not mounted", itemID)
	}
	return b, nil
}

func (s *shell) indexOf(itemID string) (int, error) {
	for _, row := range s.view.Rows() {
		if row.ID == itemID {
			return row.Index, nil
		}
	}
	return 0, fmt.Errorf("%s is not visible", itemID)
}

func (s *shell) move(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: mv <id> above|below|into|after <target> [level]")
	}
	d := drop.Drop{DraggedID: args[0], TargetID: args[2]}
	index, err := s.indexOf(d.TargetID)
	if err != nil {
		return err
	}
	d.TargetIndex = index

	switch args[1] {
	case "above":
		d.Instruction = tree.Instruction{Type: tree.ReorderAbove}
	case "below":
		d.Instruction = tree.Instruction{Type: tree.ReorderBelow}
	case "into":
		d.Instruction = tree.Instruction{Type: tree.MakeChild}
	case "after":
		if len(args) != 4 {
			return errors.New("usage: mv <id> after <target> <level>")
		}
		level, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		d.Instruction = tree.Instruction{Type: tree.Reparent, DesiredLevel: level}
	default:
		return fmt.Errorf("unknown position %q", args[1])
	}

	s.expander.Dropped()
	if !s.resolver.Drop(d) {
		return errors.New("drop rejected")
	}
	return nil
}

func (s *shell) create(args []string, folder bool) error {
	parent := handler.ParseBranchSegment(args[0])
	b, ok := s.view.Branch(parent)
	if !ok {
		return fmt.Errorf("open %s before creating in it", args[0])
	}
	var node tree.Node
	if len(args) == 2 {
		node.ID = args[1]
	} else {
		node.ID = s.nextID(parent, len(b.Items())+1)
	}
	if folder {
		return b.CreateFolder(node)
	}
	return b.CreateItem(node)
}

// nextID continues the dotted numbering of the demo tree, skipping ids
// already in use anywhere in the tree.
func (s *shell) nextID(parent tree.BranchID, n int) string {
	for ; ; n++ {
		id := strconv.Itoa(n)
		if !parent.IsRoot() {
			id = fmt.Sprintf("%s.%d", parent, n)
		}
		if _, taken := s.sess.Item(id); !taken {
			return id
		}
	}
}

func (s *shell) render() {
	rows := s.view.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(s.out, s.paint(colorYellow, "(empty)"))
		return
	}
	for _, row := range rows {
		line := strings.Repeat("  ", row.Level) + marker(row.IsFolder || row.HasChildren, row.IsOpen) + row.ID
		if row.IsFolder || row.HasChildren {
			line = s.paint(colorGreen, line)
		}
		fmt.Fprintln(s.out, line)
	}
	if n := s.sess.PendingOperations(); n > 0 {
		fmt.Fprintln(s.out, s.paint(colorYellow, fmt.Sprintf("(%d pending)", n)))
	}
}
