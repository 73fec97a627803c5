package autoprobe

import (
	"context"
	"strings"
	"time"
)

// NodeType identifies the role of a node within a pattern tree.
type NodeType string

// NodeType constants.
const (
	NodeField    NodeType = "field"
	NodeList     NodeType = "list"
	NodeListItem NodeType = "list-item"
	NodeAction   NodeType = "action"
	NodeContent  NodeType = "content"
)

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeField, NodeList, NodeListItem, NodeAction, NodeContent:
		return true
	}
	return false
}

// SelectorType identifies how a selector locates content.
type SelectorType string

// SelectorType constants.
const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"
	SelectorRegex SelectorType = "regex"
)

// IsValid reports whether t is a known selector type.
func (t SelectorType) IsValid() bool {
	switch t {
	case SelectorCSS, SelectorXPath, SelectorRegex:
		return true
	}
	return false
}

// ExtractionType identifies how a matched element is read.
type ExtractionType string

// ExtractionType constants.
const (
	ExtractText      ExtractionType = "text"
	ExtractAttribute ExtractionType = "attribute"
	ExtractHTML      ExtractionType = "html"
)

// IsValid reports whether t is a known extraction type.
func (t ExtractionType) IsValid() bool {
	switch t {
	case ExtractText, ExtractAttribute, ExtractHTML:
		return true
	}
	return false
}

// SchemaVersion tags the shape a pattern was authored in.
type SchemaVersion string

// SchemaVersion constants.
const (
	SchemaV1 SchemaVersion = "v1"
	SchemaV2 SchemaVersion = "v2"
)

// Selector locates content within a document.
//
// A relative selector (IsAbsolute false) is evaluated against the nearest
// enclosing list-item match; an absolute selector is evaluated against the
// whole document.
type Selector struct {
	Type       SelectorType `json:"selector_type" yaml:"selector_type"`
	Text       string       `json:"selector_text" yaml:"selector_text"`
	IsAbsolute bool         `json:"is_absolute,omitempty" yaml:"is_absolute,omitempty"`
}

// IsBlank reports whether s selects nothing. A blank selector on a list or
// list-item is treated as absent; its type is kept for legacy round trips.
func (s *Selector) IsBlank() bool {
	return s == nil || strings.TrimSpace(s.Text) == ""
}

// PatternNode is one node of a pattern tree. Children are stored as an
// ordered list of ids; ParentID is a lookup field only.
type PatternNode struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           NodeType       `json:"node_type"`
	Selector       *Selector      `json:"selector,omitempty"`
	ExtractionType ExtractionType `json:"extraction_type,omitempty"`
	AttributeName  string         `json:"attribute_name,omitempty"`

	// DefaultValue is emitted when no record matches. HasDefault marks a
	// nil DefaultValue as an explicit null default.
	DefaultValue Value `json:"default_value,omitempty"`
	HasDefault   bool  `json:"has_default,omitempty"`

	Children []string `json:"children,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
}

// PatternTree is a named, versioned pattern. Nodes form a flat table keyed
// by id; RootID names the root node.
//
// The root node is a list-item describing the page object: the document
// itself is its single instance and it carries no selector.
type PatternTree struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Version   SchemaVersion  `json:"version"`
	RootID    string         `json:"root_id"`
	Nodes     []*PatternNode `json:"nodes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Default returns the value emitted when no record matches n.
func (n *PatternNode) Default() (Value, bool) {
	return n.DefaultValue, n.HasDefault || n.DefaultValue != nil
}

// Node returns the first node with the given id, or nil.
func (t *PatternTree) Node(id string) *PatternNode {
	for _, n := range t.Nodes {
		if n != nil && n.ID == id {
			return n
		}
	}
	return nil
}

// Root returns the root node, or nil if it does not exist.
func (t *PatternTree) Root() *PatternNode {
	return t.Node(t.RootID)
}

// index maps ids to nodes. The first node wins on duplicate ids.
func (t *PatternTree) index() map[string]*PatternNode {
	m := make(map[string]*PatternNode, len(t.Nodes))
	for _, n := range t.Nodes {
		if n == nil {
			continue
		}
		if _, ok := m[n.ID]; !ok {
			m[n.ID] = n
		}
	}
	return m
}

// NodeSpec is the nested authoring shape of a pattern node. Children are
// inlined rather than referenced by id.
type NodeSpec struct {
	ID             string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string         `json:"name" yaml:"name"`
	Type           NodeType       `json:"node_type" yaml:"node_type"`
	Selector       *Selector      `json:"selector,omitempty" yaml:"selector,omitempty"`
	ExtractionType ExtractionType `json:"extraction_type,omitempty" yaml:"extraction_type,omitempty"`
	AttributeName  string         `json:"attribute_name,omitempty" yaml:"attribute_name,omitempty"`
	DefaultValue   Value          `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	HasDefault     bool           `json:"has_default,omitempty" yaml:"has_default,omitempty"`
	Children       []*NodeSpec    `json:"children,omitempty" yaml:"children,omitempty"`
}

// RootNodeID is the id assigned to a root spec without an explicit id.
const RootNodeID = "root"

// NewPatternTree flattens a nested spec into a v2 pattern tree. Nodes
// without an id get one derived from their parent's id and their name.
// Nil children are skipped. Defaults are normalized; a default that is not
// a scalar is kept as given for the validator to report.
func NewPatternTree(name string, root *NodeSpec) *PatternTree {
	t := &PatternTree{Name: name, Version: SchemaV2}
	if root == nil {
		return t
	}

	var add func(spec *NodeSpec, parentID string) string
	add = func(spec *NodeSpec, parentID string) string {
		id := spec.ID
		if id == "" {
			if parentID == "" {
				id = RootNodeID
			} else {
				id = parentID + "/" + spec.Name
			}
		}

		var sel *Selector
		if spec.Selector != nil {
			s := *spec.Selector
			sel = &s
		}
		def := spec.DefaultValue
		if v, err := NormalizeValue(def); err == nil {
			def = v
		}
		n := &PatternNode{
			ID:             id,
			Name:           spec.Name,
			Type:           spec.Type,
			Selector:       sel,
			ExtractionType: spec.ExtractionType,
			AttributeName:  spec.AttributeName,
			DefaultValue:   def,
			HasDefault:     spec.HasDefault || def != nil,
			ParentID:       parentID,
		}
		t.Nodes = append(t.Nodes, n)
		for _, child := range spec.Children {
			if child == nil {
				continue
			}
			n.Children = append(n.Children, add(child, id))
		}
		return id
	}
	t.RootID = add(root, "")

	return t
}

// Spec returns the nested authoring shape of the tree. Each node is
// visited at most once, so malformed trees cannot loop.
func (t *PatternTree) Spec() *NodeSpec {
	idx := t.index()
	seen := make(map[string]bool, len(idx))

	var build func(id string) *NodeSpec
	build = func(id string) *NodeSpec {
		n, ok := idx[id]
		if !ok || seen[id] {
			return nil
		}
		seen[id] = true

		spec := &NodeSpec{
			ID:             n.ID,
			Name:           n.Name,
			Type:           n.Type,
			ExtractionType: n.ExtractionType,
			AttributeName:  n.AttributeName,
			DefaultValue:   n.DefaultValue,
			HasDefault:     n.HasDefault,
		}
		if n.Selector != nil {
			s := *n.Selector
			spec.Selector = &s
		}
		for _, childID := range n.Children {
			if child := build(childID); child != nil {
				spec.Children = append(spec.Children, child)
			}
		}
		return spec
	}
	return build(t.RootID)
}

// PatternService represents a service for managing pattern trees.
type PatternService interface {
	// CreatePattern validates and stores a new pattern tree.
	// Returns EINVALID if the tree fails validation.
	CreatePattern(ctx context.Context, tree *PatternTree) error

	// FindPatternByID retrieves a pattern tree by ID.
	// Returns ENOTFOUND if the pattern does not exist.
	FindPatternByID(ctx context.Context, id string) (*PatternTree, error)

	// FindPatterns retrieves pattern trees matching the filter.
	FindPatterns(ctx context.Context, filter PatternFilter) ([]*PatternTree, error)

	// UpdatePattern replaces the nodes and name of an existing pattern.
	// Returns ECONFLICT when replacing the nodes of a pattern that tasks
	// reference.
	// Returns ENOTFOUND if the pattern does not exist.
	UpdatePattern(ctx context.Context, id string, upd PatternUpdate) (*PatternTree, error)

	// DeletePattern permanently removes a pattern.
	// Returns ENOTFOUND if the pattern does not exist and ECONFLICT if
	// tasks still reference it.
	DeletePattern(ctx context.Context, id string) error
}

// PatternFilter represents a filter for FindPatterns.
type PatternFilter struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// PatternUpdate represents fields that can be updated on a pattern.
type PatternUpdate struct {
	Name *string   `json:"name"`
	Root *NodeSpec `json:"root"`
}
