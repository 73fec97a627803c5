// Package etree evaluates pattern trees with xpath selectors against XML
// and XHTML documents.
package etree

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.Evaluator = (*Evaluator)(nil)

// Evaluator implements autoprobe.Evaluator for xpath selectors.
//
// Selectors use the path subset supported by etree. Paths starting with
// "/" are evaluated from the document root; other paths are relative to
// the enclosing list item. Documents must be well-formed XML.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Supports reports whether t is xpath.
func (e *Evaluator) Supports(t autoprobe.SelectorType) bool {
	return t == autoprobe.SelectorXPath
}

// Evaluate matches tree against doc.
func (e *Evaluator) Evaluate(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
	if err := autoprobe.ValidatePattern(tree).Err(); err != nil {
		return nil, err
	}

	paths := make(map[string]etree.Path)
	nodes := make(map[string]*autoprobe.PatternNode, len(tree.Nodes))
	for _, n := range tree.Nodes {
		nodes[n.ID] = n
		if n.Selector.IsBlank() {
			continue
		}
		if !e.Supports(n.Selector.Type) {
			return nil, autoprobe.Errorf(autoprobe.EINVALID, "node %s: unsupported selector type %s", n.ID, n.Selector.Type)
		}
		p, err := etree.CompilePath(n.Selector.Text)
		if err != nil {
			return nil, autoprobe.Errorf(autoprobe.EINVALID, "node %s: invalid xpath: %v", n.ID, err)
		}
		paths[n.ID] = p
	}

	base, err := url.Parse(doc.URL)
	if err != nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "invalid document URL: %v", err)
	}
	xml := etree.NewDocument()
	if err := xml.ReadFromString(doc.Content); err != nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "failed to parse XML: %v", err)
	}
	if xml.Root() == nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "document has no root element")
	}

	w := &walker{
		ctx:   ctx,
		nodes: nodes,
		paths: paths,
		base:  base,
		doc:   &xml.Element,
		eval:  &autoprobe.Evaluation{},
	}
	w.children(nodes[tree.RootID], &xml.Element, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.eval, nil
}

type walker struct {
	ctx   context.Context
	nodes map[string]*autoprobe.PatternNode
	paths map[string]etree.Path
	base  *url.URL
	doc   *etree.Element
	eval  *autoprobe.Evaluation
}

func (w *walker) children(item *autoprobe.PatternNode, scope *etree.Element, path []int) {
	for _, id := range item.Children {
		if w.ctx.Err() != nil {
			return
		}
		n := w.nodes[id]
		switch n.Type {
		case autoprobe.NodeField, autoprobe.NodeContent:
			w.field(n, scope, path)
		case autoprobe.NodeAction:
			w.action(n, scope, path)
		case autoprobe.NodeList:
			w.list(n, scope, path)
		}
	}
}

func (w *walker) field(n *autoprobe.PatternNode, scope *etree.Element, path []int) {
	match := w.first(n, scope)
	if match == nil {
		return
	}
	switch n.ExtractionType {
	case autoprobe.ExtractText:
		w.emit(n, path, strings.TrimSpace(innerText(match)))
	case autoprobe.ExtractAttribute:
		attr := match.SelectAttr(n.AttributeName)
		if attr == nil {
			w.warn("%s: attribute %q missing on match", n.ID, n.AttributeName)
			return
		}
		w.emit(n, path, strings.TrimSpace(attr.Value))
	case autoprobe.ExtractHTML:
		inner, err := innerXML(match)
		if err != nil {
			w.warn("%s: render xml: %v", n.ID, err)
			return
		}
		w.emit(n, path, strings.TrimSpace(inner))
	}
}

func (w *walker) action(n *autoprobe.PatternNode, scope *etree.Element, path []int) {
	match := w.first(n, scope)
	if match == nil {
		return
	}
	href := match.SelectAttrValue("href", "")
	if href == "" {
		w.emit(n, path, strings.TrimSpace(innerText(match)))
		return
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		w.warn("%s: invalid href %q", n.ID, href)
		return
	}
	resolved := w.base.ResolveReference(ref)
	resolved.Fragment = ""
	target := resolved.String()

	w.emit(n, path, target)
	if len(path) == 0 && w.eval.NextURL == "" {
		w.eval.NextURL = target
	}
}

func (w *walker) list(n *autoprobe.PatternNode, scope *etree.Element, path []int) {
	var item *autoprobe.PatternNode
	for _, id := range n.Children {
		if c := w.nodes[id]; c.Type == autoprobe.NodeListItem {
			item = c
			break
		}
	}
	if item == nil {
		return
	}

	// Without an item selector every match of the list selector is an
	// instance. Otherwise the first list match scopes the item selector.
	var instances []*etree.Element
	switch {
	case item.Selector.IsBlank():
		instances = w.all(n, scope)
	case !n.Selector.IsBlank():
		container := w.first(n, scope)
		if container == nil {
			return
		}
		instances = w.all(item, container)
	default:
		instances = w.all(item, scope)
	}

	for i, el := range instances {
		if w.ctx.Err() != nil {
			return
		}
		itemPath := make([]int, len(path)+1)
		copy(itemPath, path)
		itemPath[len(path)] = i
		w.emit(item, itemPath, nil)
		w.children(item, el, itemPath)
	}
}

func (w *walker) first(n *autoprobe.PatternNode, scope *etree.Element) *etree.Element {
	if all := w.all(n, scope); len(all) > 0 {
		return all[0]
	}
	return nil
}

func (w *walker) all(n *autoprobe.PatternNode, scope *etree.Element) []*etree.Element {
	p, ok := w.paths[n.ID]
	if !ok {
		return nil
	}
	if n.Selector.IsAbsolute {
		scope = w.doc
	}
	return scope.FindElementsPath(p)
}

func (w *walker) emit(n *autoprobe.PatternNode, path []int, value autoprobe.Value) {
	p := make([]int, len(path))
	copy(p, path)
	w.eval.Records = append(w.eval.Records, &autoprobe.ExtractionRecord{
		NodeID:       n.ID,
		InstancePath: p,
		Value:        value,
	})
}

func (w *walker) warn(format string, args ...any) {
	w.eval.Warnings = append(w.eval.Warnings, fmt.Sprintf(format, args...))
}

// innerText concatenates all character data below e.
func innerText(e *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return b.String()
}

// innerXML serializes the content of e without its own tags.
func innerXML(e *etree.Element) (string, error) {
	c := e.Copy()
	c.Space = ""
	c.Tag = "x"
	c.Attr = nil

	doc := etree.NewDocument()
	doc.SetRoot(c)
	s, err := doc.WriteToString()
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "<x/>" {
		return "", nil
	}
	return strings.TrimSuffix(strings.TrimPrefix(s, "<x>"), "</x>"), nil
}
