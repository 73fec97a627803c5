package autoprobe

// PageElementType is the kind of an overlay rectangle.
type PageElementType string

// PageElementType constants.
const (
	ElementList       PageElementType = "list"
	ElementListItem   PageElementType = "list-item"
	ElementField      PageElementType = "field"
	ElementPagination PageElementType = "pagination"
)

// ElementCoordinates is a bounding box in page pixels.
type ElementCoordinates struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageElement is a presentation-facing rectangle for one matched node
// instance. It is derived data, not authoritative.
type PageElement struct {
	Name        string             `json:"name"`
	Type        PageElementType    `json:"type"`
	NodeID      string             `json:"node_id"`
	Coordinates ElementCoordinates `json:"coordinates"`
	Children    []PageElement      `json:"children,omitempty"`
	Active      bool               `json:"active,omitempty"`
}

// GeometryHint is the bounding box of one node instance. InstancePath
// indexes positions in the materialized arrays.
type GeometryHint struct {
	NodeID       string             `json:"node_id"`
	InstancePath []int              `json:"instance_path"`
	Coordinates  ElementCoordinates `json:"coordinates"`
}

// GeometryHints is the geometry available for a projection. Elements of
// ActiveNodeID are flagged active.
type GeometryHints struct {
	Boxes        []GeometryHint `json:"boxes"`
	ActiveNodeID string         `json:"active_node_id,omitempty"`
}

// ProjectOverlay derives overlay rectangles from a tree, its materialized
// data and the available geometry. Nodes without a box contribute no
// element of their own but their children are kept; absent values produce
// no element.
func ProjectOverlay(tree *PatternTree, data PageData, hints GeometryHints) []PageElement {
	p := &projector{
		nodes:  tree.index(),
		boxes:  make(map[string]ElementCoordinates, len(hints.Boxes)),
		active: hints.ActiveNodeID,
	}
	for _, b := range hints.Boxes {
		key := b.NodeID + "#" + pathKey(b.InstancePath)
		if _, ok := p.boxes[key]; !ok {
			p.boxes[key] = b.Coordinates
		}
	}

	root, ok := p.nodes[tree.RootID]
	if !ok {
		return nil
	}
	return p.children(root, data, nil, 0)
}

// FlattenElements returns elements and their descendants in pre-order with
// children cleared.
func FlattenElements(elements []PageElement) []PageElement {
	var out []PageElement
	var walk func([]PageElement)
	walk = func(els []PageElement) {
		for _, e := range els {
			children := e.Children
			e.Children = nil
			out = append(out, e)
			walk(children)
		}
	}
	walk(elements)
	return out
}

type projector struct {
	nodes  map[string]*PatternNode
	boxes  map[string]ElementCoordinates
	active string
}

// children projects the children of an object-producing node.
func (p *projector) children(item *PatternNode, obj PageData, path []int, depth int) []PageElement {
	if depth > len(p.nodes) {
		return nil
	}
	var out []PageElement
	for _, childID := range item.Children {
		child, ok := p.nodes[childID]
		if !ok {
			continue
		}
		value, ok := obj[child.Name]
		if !ok {
			continue
		}
		out = append(out, p.node(child, value, path, depth+1)...)
	}
	return out
}

func (p *projector) node(n *PatternNode, value any, path []int, depth int) []PageElement {
	switch n.Type {
	case NodeField, NodeContent:
		if IsAbsent(value) {
			return nil
		}
		return p.element(n, ElementField, path, nil)
	case NodeAction:
		if IsAbsent(value) {
			return nil
		}
		return p.element(n, ElementPagination, path, nil)
	case NodeList:
		items, _ := value.([]PageData)
		var item *PatternNode
		for _, childID := range n.Children {
			if c, ok := p.nodes[childID]; ok && c.Type == NodeListItem {
				item = c
				break
			}
		}
		var children []PageElement
		if item != nil {
			for i, obj := range items {
				itemPath := append(path[:len(path):len(path)], i)
				grand := p.children(item, obj, itemPath, depth+1)
				children = append(children, p.element(item, ElementListItem, itemPath, grand)...)
			}
		}
		return p.element(n, ElementList, path, children)
	case NodeListItem:
		obj, _ := value.(PageData)
		return p.children(n, obj, path, depth)
	default:
		return nil
	}
}

// element wraps children in an element for n when n has a box at path,
// otherwise it returns the children unchanged.
func (p *projector) element(n *PatternNode, typ PageElementType, path []int, children []PageElement) []PageElement {
	box, ok := p.boxes[n.ID+"#"+pathKey(path)]
	if !ok {
		return children
	}
	return []PageElement{{
		Name:        n.Name,
		Type:        typ,
		NodeID:      n.ID,
		Coordinates: box,
		Children:    children,
		Active:      n.ID == p.active,
	}}
}
