package probe_test

import (
	"context"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/sqlite"
	"github.com/stretchr/testify/require"
)

const (
	headingID = "root/heading"
	titleID   = "root/items/item/title"
	itemID    = "root/items/item"
)

func css(s string) *autoprobe.Selector {
	return &autoprobe.Selector{Type: autoprobe.SelectorCSS, Text: s}
}

func catalogSpec() *autoprobe.NodeSpec {
	return &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{
			{Name: "heading", Type: autoprobe.NodeField, Selector: css("h1"), ExtractionType: autoprobe.ExtractText},
			{
				Name: "items",
				Type: autoprobe.NodeList,
				Children: []*autoprobe.NodeSpec{
					{
						Name:     "item",
						Type:     autoprobe.NodeListItem,
						Selector: css("li"),
						Children: []*autoprobe.NodeSpec{
							{Name: "title", Type: autoprobe.NodeField, Selector: css(".title"), ExtractionType: autoprobe.ExtractText},
						},
					},
				},
			},
			{Name: "next", Type: autoprobe.NodeAction, Selector: css("a.next")},
		},
	}
}

type services struct {
	patterns *sqlite.PatternService
	tasks    *sqlite.TaskService
	tree     *autoprobe.PatternTree
}

func setup(t *testing.T) *services {
	t.Helper()
	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })

	s := &services{
		patterns: sqlite.NewPatternService(db),
		tasks:    sqlite.NewTaskService(db),
		tree:     autoprobe.NewPatternTree("catalog", catalogSpec()),
	}
	require.NoError(t, s.patterns.CreatePattern(context.Background(), s.tree))
	return s
}

func (s *services) newTask(t *testing.T, target string) *autoprobe.ExtractionTask {
	t.Helper()
	task := &autoprobe.ExtractionTask{PatternID: s.tree.ID, Target: target}
	require.NoError(t, s.tasks.CreateTask(context.Background(), task))
	return task
}

func rec(nodeID string, value any, path ...int) *autoprobe.ExtractionRecord {
	if path == nil {
		path = []int{}
	}
	return &autoprobe.ExtractionRecord{NodeID: nodeID, InstancePath: path, Value: value}
}
