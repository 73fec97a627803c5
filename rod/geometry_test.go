package rod_test

import (
	"fmt"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func css(s string) *autoprobe.Selector {
	return &autoprobe.Selector{Type: autoprobe.SelectorCSS, Text: s}
}

func catalogTree() *autoprobe.PatternTree {
	return autoprobe.NewPatternTree("catalog", &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{
			{Name: "heading", Type: autoprobe.NodeField, Selector: css("h1"), ExtractionType: autoprobe.ExtractText},
			{
				Name: "items",
				Type: autoprobe.NodeList,
				Children: []*autoprobe.NodeSpec{{
					Name:     "item",
					Type:     autoprobe.NodeListItem,
					Selector: css("li"),
					Children: []*autoprobe.NodeSpec{
						{Name: "title", Type: autoprobe.NodeField, Selector: css(".title"), ExtractionType: autoprobe.ExtractText},
					},
				}},
			},
		},
	})
}

func pathString(path []int) string {
	return fmt.Sprint(path)
}

func TestNewGeometryPlan(t *testing.T) {
	t.Parallel()

	t.Run("mirrors css nodes", func(t *testing.T) {
		t.Parallel()

		plan := rod.NewGeometryPlan(catalogTree())

		require.NotNil(t, plan)
		assert.Equal(t, "root", plan.ID)
		require.Len(t, plan.Children, 2)
		assert.Equal(t, "h1", plan.Children[0].CSS)

		items := plan.Children[1]
		assert.Equal(t, "list", items.Type)
		assert.Empty(t, items.CSS)
		require.Len(t, items.Children, 1)
		assert.Equal(t, "li", items.Children[0].CSS)
		require.Len(t, items.Children[0].Children, 1)
	})

	t.Run("drops list items without css selectors", func(t *testing.T) {
		t.Parallel()

		tree := autoprobe.NewPatternTree("xml", &autoprobe.NodeSpec{
			Name: "page",
			Type: autoprobe.NodeListItem,
			Children: []*autoprobe.NodeSpec{
				{
					Name: "rows",
					Type: autoprobe.NodeList,
					Children: []*autoprobe.NodeSpec{{
						Name:     "row",
						Type:     autoprobe.NodeListItem,
						Selector: &autoprobe.Selector{Type: autoprobe.SelectorXPath, Text: "//row"},
					}},
				},
				{Name: "title", Type: autoprobe.NodeField, Selector: &autoprobe.Selector{Type: autoprobe.SelectorRegex, Text: "<h1>(.*)</h1>"}, ExtractionType: autoprobe.ExtractText},
			},
		})

		plan := rod.NewGeometryPlan(tree)

		require.Len(t, plan.Children, 2)
		assert.Empty(t, plan.Children[0].Children)
		assert.Empty(t, plan.Children[1].CSS)
	})
}

func TestNewGeometryPlan_ItemsFromListSelector(t *testing.T) {
	t.Parallel()

	tree := autoprobe.NewPatternTree("shop", &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{{
			Name:     "items",
			Type:     autoprobe.NodeList,
			Selector: css(".product"),
			Children: []*autoprobe.NodeSpec{{
				Name: "item",
				Type: autoprobe.NodeListItem,
				Children: []*autoprobe.NodeSpec{
					{Name: "title", Type: autoprobe.NodeField, Selector: css(".title"), ExtractionType: autoprobe.ExtractText},
				},
			}},
		}},
	})

	plan := rod.NewGeometryPlan(tree)

	require.Len(t, plan.Children, 1)
	items := plan.Children[0]
	assert.Equal(t, ".product", items.CSS)
	require.Len(t, items.Children, 1)
	assert.Empty(t, items.Children[0].CSS)
	require.Len(t, items.Children[0].Children, 1)
	assert.Equal(t, ".title", items.Children[0].Children[0].CSS)
}

func TestDecodeBoxes(t *testing.T) {
	t.Parallel()

	t.Run("decodes measurement output", func(t *testing.T) {
		t.Parallel()

		boxes, err := rod.DecodeBoxes(`[
			{"node_id":"root/heading","instance_path":[],"coordinates":{"top":1,"left":2,"width":3,"height":4}},
			{"node_id":"root/items/item","instance_path":[0],"coordinates":{"top":5,"left":0,"width":10,"height":20}}
		]`)

		require.NoError(t, err)
		assert.Equal(t, []autoprobe.GeometryHint{
			{NodeID: "root/heading", InstancePath: []int{}, Coordinates: autoprobe.ElementCoordinates{Top: 1, Left: 2, Width: 3, Height: 4}},
			{NodeID: "root/items/item", InstancePath: []int{0}, Coordinates: autoprobe.ElementCoordinates{Top: 5, Width: 10, Height: 20}},
		}, boxes)
	})

	t.Run("rejects malformed output", func(t *testing.T) {
		t.Parallel()

		_, err := rod.DecodeBoxes("not json")
		assert.Error(t, err)
	})
}
