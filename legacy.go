package autoprobe

import (
	"fmt"
	"strconv"
	"strings"
)

// PagePattern is the legacy (v1) flat pattern shape: page-level fields and
// lists, each list carrying an item pattern, plus an optional pagination
// rule.
type PagePattern struct {
	Name       string          `json:"name" yaml:"name"`
	Fields     []FieldRule     `json:"fields,omitempty" yaml:"fields,omitempty"`
	Lists      []ListRule      `json:"lists,omitempty" yaml:"lists,omitempty"`
	Pagination *PaginationRule `json:"pagination,omitempty" yaml:"pagination,omitempty"`
}

// FieldRule is a legacy field.
type FieldRule struct {
	Name           string         `json:"name" yaml:"name"`
	SelectorType   SelectorType   `json:"selector_type" yaml:"selector_type"`
	Selector       string         `json:"selector" yaml:"selector"`
	ExtractionType ExtractionType `json:"extraction_type" yaml:"extraction_type"`
	AttributeName  string         `json:"attribute_name,omitempty" yaml:"attribute_name,omitempty"`
	DefaultValue   string         `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// ListRule is a legacy list: a container selector, an item selector and
// the pattern applied to each item.
type ListRule struct {
	Name             string       `json:"name" yaml:"name"`
	ListSelectorType SelectorType `json:"list_selector_type" yaml:"list_selector_type"`
	ListSelector     string       `json:"list_selector" yaml:"list_selector"`
	ItemSelectorType SelectorType `json:"item_selector_type" yaml:"item_selector_type"`
	ItemSelector     string       `json:"item_selector" yaml:"item_selector"`
	ItemPattern      ItemPattern  `json:"item_pattern" yaml:"item_pattern"`
}

// ItemPattern is the per-item schema of a legacy list.
type ItemPattern struct {
	Fields []FieldRule `json:"fields,omitempty" yaml:"fields,omitempty"`
	Lists  []ListRule  `json:"lists,omitempty" yaml:"lists,omitempty"`
}

// PaginationRule is a legacy pagination selector.
type PaginationRule struct {
	Name         string       `json:"name" yaml:"name"`
	SelectorType SelectorType `json:"selector_type" yaml:"selector_type"`
	Selector     string       `json:"selector" yaml:"selector"`
}

// ListItemName is the name given to the synthetic list-item node created
// for each legacy list.
const ListItemName = "item"

// ConvertLegacyToTree maps a legacy pattern onto an equivalent v2 tree.
// Fields become field nodes, lists become list nodes with one synthetic
// list-item child, and the pagination rule becomes an action node under
// the root. Node ids are derived from positions, so the result is
// deterministic.
func ConvertLegacyToTree(p *PagePattern) *PatternTree {
	root := &NodeSpec{ID: RootNodeID, Name: p.Name, Type: NodeListItem}
	root.Children = legacyChildren(RootNodeID, p.Fields, p.Lists)
	if p.Pagination != nil {
		root.Children = append(root.Children, &NodeSpec{
			ID:       RootNodeID + "/pagination",
			Name:     p.Pagination.Name,
			Type:     NodeAction,
			Selector: &Selector{Type: p.Pagination.SelectorType, Text: p.Pagination.Selector},
		})
	}
	return NewPatternTree(p.Name, root)
}

func legacyChildren(parentID string, fields []FieldRule, lists []ListRule) []*NodeSpec {
	var children []*NodeSpec
	for i, f := range fields {
		spec := &NodeSpec{
			ID:             parentID + "/fields/" + strconv.Itoa(i),
			Name:           f.Name,
			Type:           NodeField,
			Selector:       &Selector{Type: f.SelectorType, Text: f.Selector},
			ExtractionType: f.ExtractionType,
			AttributeName:  f.AttributeName,
		}
		if f.DefaultValue != "" {
			spec.DefaultValue = f.DefaultValue
		}
		children = append(children, spec)
	}
	for i, l := range lists {
		listID := parentID + "/lists/" + strconv.Itoa(i)
		itemID := listID + "/" + ListItemName
		list := &NodeSpec{
			ID:       listID,
			Name:     l.Name,
			Type:     NodeList,
			Selector: legacySelector(l.ListSelectorType, l.ListSelector),
		}
		list.Children = []*NodeSpec{{
			ID:       itemID,
			Name:     ListItemName,
			Type:     NodeListItem,
			Selector: legacySelector(l.ItemSelectorType, l.ItemSelector),
			Children: legacyChildren(itemID, l.ItemPattern.Fields, l.ItemPattern.Lists),
		}}
		children = append(children, list)
	}
	return children
}

// legacySelector keeps a list or item selector whenever its type or text is
// set, so a typed but empty selector survives the round trip.
func legacySelector(t SelectorType, text string) *Selector {
	if t == "" && text == "" {
		return nil
	}
	return &Selector{Type: t, Text: text}
}

// DowngradeReason names a node the legacy shape cannot express.
type DowngradeReason struct {
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

// DowngradeError is returned when a v2 tree cannot be converted to the
// legacy shape. It lists every offending node.
type DowngradeError struct {
	Reasons []DowngradeReason
}

func (e *DowngradeError) Error() string {
	msgs := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		msgs[i] = fmt.Sprintf("%s: %s", r.NodeID, r.Reason)
	}
	return "downgrade unsupported: " + strings.Join(msgs, "; ")
}

// ConvertTreeToLegacy maps a v2 tree back onto the legacy shape. It fails
// closed: when any node has no legacy equivalent the result is a
// *DowngradeError naming every such node and no pattern is returned.
// Content nodes inside lists downgrade to fields.
func ConvertTreeToLegacy(tree *PatternTree) (*PagePattern, error) {
	if errs := ValidatePattern(tree); len(errs) > 0 {
		d := &DowngradeError{}
		for _, e := range errs {
			d.Reasons = append(d.Reasons, DowngradeReason{NodeID: e.NodeID, Reason: "invalid tree: " + e.Message})
		}
		return nil, d
	}

	d := &downgrader{nodes: tree.index()}
	root := d.nodes[tree.RootID]
	name := tree.Name
	if name == "" {
		name = root.Name
	}
	p := &PagePattern{Name: name}
	if root.Selector != nil {
		d.reject(root.ID, "root selector has no legacy equivalent")
	}

	for _, n := range d.children(root) {
		switch n.Type {
		case NodeField:
			p.Fields = append(p.Fields, d.field(n))
		case NodeContent:
			d.reject(n.ID, "content node outside a list has no legacy equivalent")
		case NodeList:
			p.Lists = append(p.Lists, d.list(n))
		case NodeAction:
			if p.Pagination != nil {
				d.reject(n.ID, "legacy patterns support a single pagination action")
				continue
			}
			p.Pagination = d.pagination(n)
		case NodeListItem:
			d.reject(n.ID, "list-item outside a list has no legacy equivalent")
		}
	}

	if len(d.reasons) > 0 {
		return nil, &DowngradeError{Reasons: d.reasons}
	}
	return p, nil
}

type downgrader struct {
	nodes   map[string]*PatternNode
	reasons []DowngradeReason
}

func (d *downgrader) reject(id, format string, args ...any) {
	d.reasons = append(d.reasons, DowngradeReason{NodeID: id, Reason: fmt.Sprintf(format, args...)})
}

func (d *downgrader) children(n *PatternNode) []*PatternNode {
	out := make([]*PatternNode, 0, len(n.Children))
	for _, id := range n.Children {
		out = append(out, d.nodes[id])
	}
	return out
}

func (d *downgrader) selector(n *PatternNode) (SelectorType, string) {
	if n.Selector == nil {
		return "", ""
	}
	if n.Selector.IsAbsolute {
		d.reject(n.ID, "absolute selectors have no legacy equivalent")
	}
	return n.Selector.Type, n.Selector.Text
}

func (d *downgrader) field(n *PatternNode) FieldRule {
	f := FieldRule{
		Name:           n.Name,
		ExtractionType: n.ExtractionType,
		AttributeName:  n.AttributeName,
	}
	f.SelectorType, f.Selector = d.selector(n)
	def, ok := n.Default()
	switch v := def.(type) {
	case string:
		f.DefaultValue = v
	default:
		if ok {
			d.reject(n.ID, "legacy defaults must be strings, got %T", v)
		}
	}
	return f
}

func (d *downgrader) pagination(n *PatternNode) *PaginationRule {
	p := &PaginationRule{Name: n.Name}
	p.SelectorType, p.Selector = d.selector(n)
	if n.AttributeName != "" {
		d.reject(n.ID, "legacy pagination has no attribute name")
	}
	if _, ok := n.Default(); ok {
		d.reject(n.ID, "legacy pagination has no default value")
	}
	return p
}

func (d *downgrader) list(n *PatternNode) ListRule {
	l := ListRule{Name: n.Name}
	l.ListSelectorType, l.ListSelector = d.selector(n)

	children := d.children(n)
	if len(children) != 1 || children[0].Type != NodeListItem {
		d.reject(n.ID, "legacy lists need exactly one list-item child")
		return l
	}
	item := children[0]
	l.ItemSelectorType, l.ItemSelector = d.selector(item)

	for _, c := range d.children(item) {
		switch c.Type {
		case NodeField, NodeContent:
			l.ItemPattern.Fields = append(l.ItemPattern.Fields, d.field(c))
		case NodeList:
			l.ItemPattern.Lists = append(l.ItemPattern.Lists, d.list(c))
		case NodeAction:
			d.reject(c.ID, "legacy patterns only support pagination at the page level")
		case NodeListItem:
			d.reject(c.ID, "nested list-item has no legacy equivalent")
		}
	}
	return l
}
