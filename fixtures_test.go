package autoprobe_test

import "github.com/fwojciec/autoprobe"

func css(text string) *autoprobe.Selector {
	return &autoprobe.Selector{Type: autoprobe.SelectorCSS, Text: text}
}

func textField(name, selector string) *autoprobe.NodeSpec {
	return &autoprobe.NodeSpec{
		Name:           name,
		Type:           autoprobe.NodeField,
		Selector:       css(selector),
		ExtractionType: autoprobe.ExtractText,
	}
}

// productTree returns root.items (list, ".product") -> item -> {title,
// price}. The item has no selector of its own, so each list match is one
// item. Node ids: root, root/items, root/items/item, root/items/item/title,
// root/items/item/price.
func productTree() *autoprobe.PatternTree {
	return autoprobe.NewPatternTree("products", &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{
			{
				Name:     "items",
				Type:     autoprobe.NodeList,
				Selector: css(".product"),
				Children: []*autoprobe.NodeSpec{
					{
						Name: "item",
						Type: autoprobe.NodeListItem,
						Children: []*autoprobe.NodeSpec{
							textField("title", ".title"),
							textField("price", ".price"),
						},
					},
				},
			},
		},
	})
}

// categoryTree returns root.categories (list) -> category -> {name,
// products (list) -> product -> {title}}.
func categoryTree() *autoprobe.PatternTree {
	return autoprobe.NewPatternTree("catalog", &autoprobe.NodeSpec{
		Name: "page",
		Type: autoprobe.NodeListItem,
		Children: []*autoprobe.NodeSpec{
			textField("heading", "h1"),
			{
				Name: "categories",
				Type: autoprobe.NodeList,
				Children: []*autoprobe.NodeSpec{
					{
						Name:     "category",
						Type:     autoprobe.NodeListItem,
						Selector: css(".category"),
						Children: []*autoprobe.NodeSpec{
							textField("name", "h2"),
							{
								Name: "products",
								Type: autoprobe.NodeList,
								Children: []*autoprobe.NodeSpec{
									{
										Name:     "product",
										Type:     autoprobe.NodeListItem,
										Selector: css(".product"),
										Children: []*autoprobe.NodeSpec{
											textField("title", ".title"),
										},
									},
								},
							},
						},
					},
				},
			},
			{
				Name:     "next",
				Type:     autoprobe.NodeAction,
				Selector: css("a.next"),
			},
		},
	})
}

func rec(nodeID string, value any, path ...int) *autoprobe.ExtractionRecord {
	if path == nil {
		path = []int{}
	}
	return &autoprobe.ExtractionRecord{TaskID: "task-1", NodeID: nodeID, InstancePath: path, Value: value}
}
