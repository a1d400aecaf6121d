package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/handler"
	"cleantree/internal/seed"
)

func newTreesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trees",
		Short: "List the trees on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			ids, err := a.client.ListTrees(ctx)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the whole tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			data, err := a.client.GetTree(ctx)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), data)
			}
			printNested(cmd.OutOrStdout(), data, 0)
			return nil
		},
	}
}

func printNested(w io.Writer, nodes []tree.NodeData, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), marker(n.IsFolder, n.IsOpen), n.ID)
		printNested(w, n.Children, depth+1)
	}
}

func marker(folder, open bool) string {
	switch {
	case folder && open:
		return "v "
	case folder:
		return "> "
	default:
		return "- "
	}
}

func newChildrenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "children [branch]",
		Short: "List the children of a branch (default root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			b := tree.RootBranch
			if len(args) == 1 {
				b = handler.ParseBranchSegment(args[0])
			}
			items, err := a.client.LoadChildren(ctx, b)
			if err != nil {
				return err
			}
			return a.printItems(cmd.OutOrStdout(), items)
		},
	}
}

func (a *app) printItems(w io.Writer, items []tree.Node) error {
	if a.jsonOutput() {
		return printJSON(w, items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tID\tFOLDER\tOPEN")
	for i, item := range items {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%t\n", i, item.ID, item.IsFolder, item.IsOpen)
	}
	return tw.Flush()
}

func newMoveCmd(a *app) *cobra.Command {
	var from, to string
	var index int

	cmd := &cobra.Command{
		Use:   "move <item>",
		Short: "Move an item to a branch and index",
		Long: `Move an item directly on the server, bypassing the optimistic session.

Examples:
  treectl move 3 --to 1 --index 0     # make 3 the first child of 1
  treectl move 1.2 --to root --index 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			result, err := a.client.MoveItem(ctx, tree.MoveArgs{
				ItemID:         args[0],
				SourceBranchID: handler.ParseBranchSegment(from),
				TargetBranchID: handler.ParseBranchSegment(to),
				TargetIndex:    index,
			})
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "source: %s\ntarget: %s\n",
				strings.Join(tree.IDs(result.SourceBranchItems), " "),
				strings.Join(tree.IDs(result.TargetBranchItems), " "))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "root", "branch the item is in; the server trusts its own record")
	cmd.Flags().StringVar(&to, "to", "root", "target branch")
	cmd.Flags().IntVar(&index, "index", 0, "position in the target branch")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var folder bool
	cmd := &cobra.Command{
		Use:   "create <branch> [id]",
		Short: "Append an item to a branch; the server picks an id if none is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			var node tree.Node
			if len(args) == 2 {
				node.ID = args[1]
			}
			parent := handler.ParseBranchSegment(args[0])
			create := a.client.CreateItem
			if folder {
				create = a.client.CreateFolder
			}
			items, err := create(ctx, parent, node)
			if err != nil {
				return err
			}
			return a.printItems(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "create a folder")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var folder bool
	cmd := &cobra.Command{
		Use:     "delete <branch> <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an item, or with --folder an item and everything under it",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			b := handler.ParseBranchSegment(args[0])
			remove := a.client.DeleteItem
			if folder {
				remove = a.client.DeleteFolder
			}
			items, err := remove(ctx, args[1], b)
			if err != nil {
				return err
			}
			return a.printItems(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "delete the whole subtree")
	return cmd
}

func newOpenCmd(a *app, open bool) *cobra.Command {
	use, short := "open <item>", "Mark an item expanded"
	if !open {
		use, short = "close <item>", "Mark an item collapsed"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return a.client.SetOpenState(ctx, args[0], open)
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var breadth, depth int
	cmd := &cobra.Command{
		Use:   "seed [fixture|file]",
		Short: "Replace the tree with a fixture, a YAML/JSON file, or a generated tree",
		Long: fmt.Sprintf(`Replace the tree on the server.

With no argument the %q fixture is used. Built-in fixtures: %s.
With --breadth and --depth a tree of that shape is generated instead.`,
			seed.DefaultFixture, strings.Join(seed.Fixtures(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			var data []tree.NodeData
			switch {
			case breadth > 0 || depth > 0:
				if breadth <= 0 || depth <= 0 {
					return fmt.Errorf("--breadth and --depth must both be positive")
				}
				data = seed.Generate(breadth, depth)
			default:
				var ref string
				if len(args) == 1 {
					ref = args[0]
				}
				var err error
				if data, err = seed.Resolve(ref); err != nil {
					return err
				}
			}

			if err := a.client.Seed(ctx, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s with %d items\n", a.client.TreeID(), seed.Count(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&breadth, "breadth", 0, "children per item of a generated tree")
	cmd.Flags().IntVar(&depth, "depth", 0, "levels of a generated tree")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print committed changes to the tree as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return a.client.Watch(cmd.Context(), func(e event.Event) {
				if a.jsonOutput() {
					payload, err := json.Marshal(e)
					if err != nil {
						a.logger.Warn("failed to encode event", "kind", e.Kind(), "error", err)
						return
					}
					fmt.Fprintf(out, "{\"kind\":%q,\"event\":%s}\n", e.Kind(), payload)
					return
				}
				fmt.Fprintln(out, describe(e))
			})
		},
	}
}

// describe renders a feed event on one line.
func describe(e event.Event) string {
	switch e := e.(type) {
	case event.BranchReconcile:
		return fmt.Sprintf("%s %s: %s", e.Kind(), e.BranchID, strings.Join(tree.IDs(e.Items), " "))
	case event.ItemCreated:
		return fmt.Sprintf("%s %s in %s", e.Kind(), e.Item.ID, e.BranchID)
	case event.ItemDeleted:
		return fmt.Sprintf("%s %s from %s", e.Kind(), e.ItemID, e.BranchID)
	case event.OpenStateChanged:
		return fmt.Sprintf("%s %s open=%t", e.Kind(), e.ItemID, e.IsOpen)
	default:
		return string(e.Kind())
	}
}
