package rod

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.GeometryCollector = (*GeometryCollector)(nil)

// GeometryCollector renders a target and measures the bounding boxes of
// css matches with getBoundingClientRect. Nodes with other selector types
// get no box; list items without a css selector of their own or on their
// list are skipped with their subtree.
type GeometryCollector struct {
	browsers *BrowserManager
}

// NewGeometryCollector creates a GeometryCollector that opens pages from bm.
func NewGeometryCollector(bm *BrowserManager) *GeometryCollector {
	return &GeometryCollector{browsers: bm}
}

// Collect loads url and returns one box per matched node instance.
// Instance paths count list items in document order.
func (c *GeometryCollector) Collect(ctx context.Context, tree *autoprobe.PatternTree, url string) (autoprobe.GeometryHints, error) {
	plan, err := json.Marshal(NewGeometryPlan(tree))
	if err != nil {
		return autoprobe.GeometryHints{}, fmt.Errorf("failed to encode geometry plan: %w", err)
	}

	page, release, err := c.browsers.Page(ctx)
	if err != nil {
		return autoprobe.GeometryHints{}, err
	}
	defer release()

	if err := page.Navigate(url); err != nil {
		return autoprobe.GeometryHints{}, err
	}
	if err := page.WaitLoad(); err != nil {
		return autoprobe.GeometryHints{}, err
	}

	res, err := page.Eval(measureJS, string(plan))
	if err != nil {
		return autoprobe.GeometryHints{}, fmt.Errorf("measuring boxes: %w", err)
	}
	boxes, err := DecodeBoxes(res.Value.Str())
	if err != nil {
		return autoprobe.GeometryHints{}, err
	}
	return autoprobe.GeometryHints{Boxes: boxes}, nil
}

// GeometryPlan is the part of a pattern tree the browser walks.
type GeometryPlan struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	CSS      string          `json:"css,omitempty"`
	Absolute bool            `json:"absolute,omitempty"`
	Children []*GeometryPlan `json:"children,omitempty"`
}

// NewGeometryPlan converts tree into the plan measured in the browser.
// Non-css selectors are dropped. A list item without one is omitted unless
// its list has one, in which case each list match is an item.
func NewGeometryPlan(tree *autoprobe.PatternTree) *GeometryPlan {
	seen := make(map[string]bool)
	var build func(id, listCSS string) *GeometryPlan
	build = func(id, listCSS string) *GeometryPlan {
		n := tree.Node(id)
		if n == nil || seen[id] {
			return nil
		}
		seen[id] = true

		p := &GeometryPlan{ID: n.ID, Type: string(n.Type)}
		if !n.Selector.IsBlank() && n.Selector.Type == autoprobe.SelectorCSS {
			p.CSS = n.Selector.Text
			p.Absolute = n.Selector.IsAbsolute
		}
		if n.Type == autoprobe.NodeListItem && n.ID != tree.RootID && p.CSS == "" {
			if listCSS == "" || !n.Selector.IsBlank() {
				return nil
			}
		}
		for _, childID := range n.Children {
			var css string
			if n.Type == autoprobe.NodeList {
				css = p.CSS
			}
			if child := build(childID, css); child != nil {
				p.Children = append(p.Children, child)
			}
		}
		return p
	}
	return build(tree.RootID, "")
}

// DecodeBoxes parses the measurement script's output.
func DecodeBoxes(raw string) ([]autoprobe.GeometryHint, error) {
	var boxes []autoprobe.GeometryHint
	if err := json.Unmarshal([]byte(raw), &boxes); err != nil {
		return nil, fmt.Errorf("failed to decode boxes: %w", err)
	}
	for i := range boxes {
		if boxes[i].InstancePath == nil {
			boxes[i].InstancePath = []int{}
		}
	}
	return boxes, nil
}

// measureJS walks the plan against the live DOM. Lists box their
// container, which is the first match of the list selector or the
// enclosing scope when there is none. An item without css takes every
// list match as an instance and the list itself gets no box.
const measureJS = `(raw) => {
	const plan = JSON.parse(raw);
	const out = [];
	const box = (id, path, el) => {
		const r = el.getBoundingClientRect();
		out.push({
			node_id: id,
			instance_path: path,
			coordinates: {
				top: r.top + window.scrollY,
				left: r.left + window.scrollX,
				width: r.width,
				height: r.height,
			},
		});
	};
	const scopeOf = (n, scope) => (n.absolute ? document : scope);
	const walk = (item, scope, path) => {
		for (const n of item.children || []) {
			if (n.type === 'list') {
				const it = (n.children || []).find((c) => c.type === 'list-item');
				if (!it) continue;
				let instances;
				if (!it.css) {
					instances = scopeOf(n, scope).querySelectorAll(n.css);
				} else {
					let container = scope;
					if (n.css) {
						container = scopeOf(n, scope).querySelector(n.css);
						if (!container) continue;
						box(n.id, path, container);
					}
					instances = scopeOf(it, container).querySelectorAll(it.css);
				}
				instances.forEach((el, i) => {
					const p = path.concat([i]);
					box(it.id, p, el);
					walk(it, el, p);
				});
			} else if (n.css) {
				const el = scopeOf(n, scope).querySelector(n.css);
				if (el) box(n.id, path, el);
			}
		}
	};
	walk(plan, document, []);
	return JSON.stringify(out);
}`
