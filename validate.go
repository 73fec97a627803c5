package autoprobe

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Default bounds on user-authored trees.
const (
	DefaultMaxDepth = 32
	DefaultMaxNodes = 4096
)

// Validation error codes.
const (
	VMissingID                = "missing_id"
	VDuplicateID              = "duplicate_id"
	VMissingRoot              = "missing_root"
	VInvalidRoot              = "invalid_root"
	VDanglingChild            = "dangling_child"
	VDanglingParent           = "dangling_parent"
	VParentMismatch           = "parent_mismatch"
	VMultipleParents          = "multiple_parents"
	VCycle                    = "cycle"
	VUnreachable              = "unreachable"
	VMaxDepth                 = "max_depth"
	VMaxNodes                 = "max_nodes"
	VInvalidNodeType          = "invalid_node_type"
	VListWithoutItem          = "list_without_item"
	VListMultipleItems        = "list_multiple_items"
	VListChildType            = "list_child_type"
	VItemOutsideList          = "item_outside_list"
	VMissingSelector          = "missing_selector"
	VInvalidSelectorType      = "invalid_selector_type"
	VInvalidRegex             = "invalid_regex"
	VMissingExtractionType    = "missing_extraction_type"
	VInvalidExtractionType    = "invalid_extraction_type"
	VUnexpectedExtractionType = "unexpected_extraction_type"
	VMissingAttributeName     = "missing_attribute_name"
	VLeafWithChildren         = "leaf_with_children"
	VMissingName              = "missing_name"
	VDuplicateName            = "duplicate_name"
	VInvalidDefault           = "invalid_default"
)

// ValidationError describes one problem with a pattern tree.
type ValidationError struct {
	NodeID  string `json:"node_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
}

// ValidationErrors is the result of validating a tree. Empty means valid.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when errs is empty, otherwise an EINVALID application error.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return Errorf(EINVALID, "invalid pattern: %s", errs.Error())
}

// HasCode reports whether any error carries the given code.
func (errs ValidationErrors) HasCode(code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

// ValidateOptions bounds the size of trees accepted by ValidatePatternWith.
type ValidateOptions struct {
	MaxDepth int
	MaxNodes int
}

// ValidatePattern checks tree with the default bounds.
func ValidatePattern(tree *PatternTree) ValidationErrors {
	return ValidatePatternWith(tree, ValidateOptions{})
}

// ValidatePatternWith checks that tree is well formed enough to be
// evaluated and materialized. It never mutates the tree.
func ValidatePatternWith(tree *PatternTree, opts ValidateOptions) ValidationErrors {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}

	v := &validator{tree: tree, opts: opts}
	if tree == nil {
		v.add("", VMissingRoot, "pattern tree is nil")
		return v.errs
	}

	// Oversized trees are rejected before any per-node work.
	if len(tree.Nodes) > opts.MaxNodes {
		v.add(tree.RootID, VMaxNodes, "tree has %d nodes, maximum is %d", len(tree.Nodes), opts.MaxNodes)
		return v.errs
	}

	v.checkIDs()
	v.checkLinks()
	for _, n := range tree.Nodes {
		if n != nil {
			v.checkNode(n)
		}
	}
	v.walk()
	return v.errs
}

type validator struct {
	tree  *PatternTree
	opts  ValidateOptions
	first map[string]*PatternNode
	errs  ValidationErrors
}

func (v *validator) add(id, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{NodeID: id, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) checkIDs() {
	v.first = make(map[string]*PatternNode, len(v.tree.Nodes))
	pos := make(map[string]int, len(v.tree.Nodes))
	for i, n := range v.tree.Nodes {
		if n == nil {
			v.add("", VMissingID, "node at position %d is empty", i)
			continue
		}
		if n.ID == "" {
			v.add("", VMissingID, "node at position %d (name %q) has no id", i, n.Name)
			continue
		}
		if prev, ok := v.first[n.ID]; ok {
			v.add(n.ID, VDuplicateID, "duplicate id %q: node %d (name %q) collides with node %d (name %q)",
				n.ID, i, n.Name, pos[n.ID], prev.Name)
			continue
		}
		v.first[n.ID] = n
		pos[n.ID] = i
	}
}

func (v *validator) checkLinks() {
	root, ok := v.first[v.tree.RootID]
	switch {
	case v.tree.RootID == "" || !ok:
		v.add(v.tree.RootID, VMissingRoot, "root node %q not found", v.tree.RootID)
	case root.Type != NodeListItem:
		v.add(root.ID, VInvalidRoot, "root node must be %s, got %q", NodeListItem, root.Type)
	case root.ParentID != "":
		v.add(root.ID, VInvalidRoot, "root node must not have a parent, got %q", root.ParentID)
	}

	for _, n := range v.tree.Nodes {
		if n == nil || v.first[n.ID] != n {
			continue
		}
		for _, childID := range n.Children {
			child, ok := v.first[childID]
			if !ok {
				v.add(n.ID, VDanglingChild, "child %q not found", childID)
				continue
			}
			if child.ParentID != n.ID {
				v.add(child.ID, VParentMismatch, "listed as child of %q but parent_id is %q", n.ID, child.ParentID)
			}
		}
		if n.ParentID == "" || n.ID == v.tree.RootID {
			continue
		}
		parent, ok := v.first[n.ParentID]
		if !ok {
			v.add(n.ID, VDanglingParent, "parent %q not found", n.ParentID)
			continue
		}
		if !slices.Contains(parent.Children, n.ID) {
			v.add(n.ID, VParentMismatch, "parent %q does not list it as a child", n.ParentID)
		}
	}
}

func (v *validator) checkNode(n *PatternNode) {
	isRoot := n.ID == v.tree.RootID

	if _, err := NormalizeValue(n.DefaultValue); err != nil {
		v.add(n.ID, VInvalidDefault, "default value of type %T is not a scalar", n.DefaultValue)
	}

	switch n.Type {
	case NodeField, NodeContent:
		v.checkSelector(n)
		v.checkLeaf(n)
		switch {
		case n.ExtractionType == "":
			v.add(n.ID, VMissingExtractionType, "%s node requires an extraction type", n.Type)
		case !n.ExtractionType.IsValid():
			v.add(n.ID, VInvalidExtractionType, "unknown extraction type %q", n.ExtractionType)
		case n.ExtractionType == ExtractAttribute && n.AttributeName == "":
			v.add(n.ID, VMissingAttributeName, "attribute extraction requires an attribute name")
		}
	case NodeAction:
		v.checkSelector(n)
		v.checkLeaf(n)
		if n.ExtractionType != "" {
			v.add(n.ID, VUnexpectedExtractionType, "action node must not have an extraction type")
		}
	case NodeList:
		if !n.Selector.IsBlank() {
			v.checkSelector(n)
		}
		if n.ExtractionType != "" {
			v.add(n.ID, VUnexpectedExtractionType, "list node must not have an extraction type")
		}
		items := 0
		for _, childID := range n.Children {
			child, ok := v.first[childID]
			if !ok {
				continue
			}
			if child.Type == NodeListItem {
				items++
			} else {
				v.add(child.ID, VListChildType, "child of list %q must be %s, got %q", n.ID, NodeListItem, child.Type)
			}
		}
		switch {
		case items == 0:
			v.add(n.ID, VListWithoutItem, "list node has no %s child", NodeListItem)
		case items > 1:
			v.add(n.ID, VListMultipleItems, "list node has %d %s children, expected exactly one", items, NodeListItem)
		}
	case NodeListItem:
		if n.ExtractionType != "" {
			v.add(n.ID, VUnexpectedExtractionType, "list-item node must not have an extraction type")
		}
		if !isRoot {
			parent, ok := v.first[n.ParentID]
			switch {
			case !n.Selector.IsBlank():
				v.checkSelector(n)
			case ok && parent.Type == NodeList && parent.Selector.IsBlank():
				v.add(n.ID, VMissingSelector, "list-item node requires a selector when its list has none")
			}
			if ok && parent.Type != NodeList {
				v.add(n.ID, VItemOutsideList, "list-item parent %q is %q, not a list", parent.ID, parent.Type)
			}
		}
		v.checkChildNames(n)
	default:
		v.add(n.ID, VInvalidNodeType, "unknown node type %q", n.Type)
	}
}

func (v *validator) checkSelector(n *PatternNode) {
	sel := n.Selector
	switch {
	case sel == nil || strings.TrimSpace(sel.Text) == "":
		v.add(n.ID, VMissingSelector, "%s node requires a selector", n.Type)
	case !sel.Type.IsValid():
		v.add(n.ID, VInvalidSelectorType, "unknown selector type %q", sel.Type)
	case sel.Type == SelectorRegex:
		if _, err := regexp.Compile(sel.Text); err != nil {
			v.add(n.ID, VInvalidRegex, "invalid regex selector: %v", err)
		}
	}
}

func (v *validator) checkLeaf(n *PatternNode) {
	if len(n.Children) > 0 {
		v.add(n.ID, VLeafWithChildren, "%s node must not have children", n.Type)
	}
}

// checkChildNames ensures the children of an object-producing node map to
// distinct, non-empty keys.
func (v *validator) checkChildNames(n *PatternNode) {
	seen := make(map[string]string, len(n.Children))
	for _, childID := range n.Children {
		child, ok := v.first[childID]
		if !ok {
			continue
		}
		if child.Name == "" {
			v.add(child.ID, VMissingName, "child of %q has no name", n.ID)
			continue
		}
		if other, dup := seen[child.Name]; dup {
			v.add(child.ID, VDuplicateName, "name %q is also used by sibling %q", child.Name, other)
			continue
		}
		seen[child.Name] = child.ID
	}
}

// walk traverses the tree from the root without recursion, reporting
// cycles, shared children, excessive depth and unreachable nodes.
func (v *validator) walk() {
	root, ok := v.first[v.tree.RootID]
	if !ok {
		return
	}

	type frame struct {
		id    string
		depth int
	}
	via := map[string]string{root.ID: ""}
	stack := []frame{{id: root.ID, depth: 1}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > v.opts.MaxDepth {
			v.add(f.id, VMaxDepth, "node is at depth %d, maximum is %d", f.depth, v.opts.MaxDepth)
			continue
		}

		n := v.first[f.id]
		for i := len(n.Children) - 1; i >= 0; i-- {
			childID := n.Children[i]
			if _, ok := v.first[childID]; !ok {
				continue
			}
			if parent, seen := via[childID]; seen {
				// Listed twice by one parent, not a second parent.
				if parent == f.id {
					continue
				}
				if v.isAncestor(via, childID, f.id) {
					v.add(childID, VCycle, "node is its own ancestor via %q", f.id)
				} else {
					v.add(childID, VMultipleParents, "node is a child of both %q and %q", parent, f.id)
				}
				continue
			}
			via[childID] = f.id
			stack = append(stack, frame{id: childID, depth: f.depth + 1})
		}
	}

	for _, n := range v.tree.Nodes {
		if n == nil || v.first[n.ID] != n {
			continue
		}
		if _, ok := via[n.ID]; !ok {
			v.add(n.ID, VUnreachable, "node is not reachable from root %q", v.tree.RootID)
		}
	}
}

// isAncestor reports whether candidate lies on the traversal path to id.
func (v *validator) isAncestor(via map[string]string, candidate, id string) bool {
	for steps := 0; id != "" && steps <= len(via); steps++ {
		if id == candidate {
			return true
		}
		id = via[id]
	}
	return false
}
