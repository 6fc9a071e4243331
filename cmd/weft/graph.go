package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weftctx/weft/pkg/store"
	"github.com/weftctx/weft/pkg/store/sqlite"
	"github.com/weftctx/weft/pkg/store/sqlstore"
)

var graphCmd = &cobra.Command{
	Use:   "graph <chat-id>",
	Short: "Print an ASCII-art branch graph for a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGraph(cmd, args[0])
	},
}

func runGraph(cmd *cobra.Command, chatID string) error {
	ctx := cmd.Context()

	dbPath, err := sqlstore.DefaultDBPath()
	if err != nil {
		return err
	}
	contextStore, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer contextStore.Close()

	graph, err := contextStore.GetGraph(ctx, chatID)
	if err != nil {
		return err
	}

	printGraph(graph)
	return nil
}

func printGraph(graph store.Graph) {
	children := make(map[string][]store.GraphNode)
	var roots []store.GraphNode
	for _, n := range graph.Nodes {
		if n.ParentID == "" {
			roots = append(roots, n)
		} else {
			children[n.ParentID] = append(children[n.ParentID], n)
		}
	}
	for parent := range children {
		sort.Slice(children[parent], func(i, j int) bool {
			return children[parent][i].CreatedAt.Before(children[parent][j].CreatedAt)
		})
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].CreatedAt.Before(roots[j].CreatedAt) })

	headByMessage := make(map[string]string)
	for _, b := range graph.Branches {
		if b.HeadMessageID != "" {
			headByMessage[b.HeadMessageID] = b.Name
		}
	}

	for _, root := range roots {
		printNode(root, children, headByMessage, "", true)
	}
}

func printNode(n store.GraphNode, children map[string][]store.GraphNode, headByMessage map[string]string, prefix string, last bool) {
	connector := "├── "
	if last {
		connector = "└── "
	}

	label := fmt.Sprintf("%s %s", colorForRole(n.Role)(n.Role), n.Preview)
	if n.Deleted {
		label = color.New(color.Faint).Sprint(label + " (deleted)")
	}
	if branch, ok := headByMessage[n.ID]; ok {
		label += color.New(color.FgYellow).Sprintf(" [%s]", branch)
	}

	fmt.Fprintln(os.Stdout, prefix+connector+label)

	childPrefix := prefix + "    "
	if !last {
		childPrefix = prefix + "│   "
	}
	kids := children[n.ID]
	for i, child := range kids {
		printNode(child, children, headByMessage, childPrefix, i == len(kids)-1)
	}
}

func colorForRole(role string) func(a ...any) string {
	switch role {
	case "user":
		return color.New(color.FgCyan).SprintFunc()
	case "assistant":
		return color.New(color.FgGreen).SprintFunc()
	default:
		return color.New(color.FgWhite).SprintFunc()
	}
}
