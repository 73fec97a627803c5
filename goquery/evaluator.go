// Package goquery evaluates pattern trees against HTML documents using
// CSS selectors (via goquery) and regular expressions.
package goquery

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/autoprobe"
	"github.com/microcosm-cc/bluemonday"
)

var _ autoprobe.Evaluator = (*Evaluator)(nil)

// Evaluator implements autoprobe.Evaluator for css and regex selectors.
//
// A css selector matches descendants of the enclosing list item, or of
// the whole document when absolute. A regex selector runs over the HTML of
// the same scope and yields its first capture group, or the whole match
// when it has none. Fields take their first match.
type Evaluator struct {
	sanitizer *bluemonday.Policy
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSanitizer cleans html extractions with p.
func WithSanitizer(p *bluemonday.Policy) Option {
	return func(e *Evaluator) {
		e.sanitizer = p
	}
}

// WithUGCSanitizer cleans html extractions with bluemonday's policy for
// user generated content, which drops scripts, styles and event handlers.
func WithUGCSanitizer() Option {
	return WithSanitizer(bluemonday.UGCPolicy())
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether t is css or regex.
func (e *Evaluator) Supports(t autoprobe.SelectorType) bool {
	return t == autoprobe.SelectorCSS || t == autoprobe.SelectorRegex
}

// Evaluate matches tree against doc and returns one record per matched
// field, action and list item.
func (e *Evaluator) Evaluate(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
	if err := autoprobe.ValidatePattern(tree).Err(); err != nil {
		return nil, err
	}

	regexes := make(map[string]*regexp.Regexp)
	compiled := make(map[string]cascadia.Selector)
	nodes := make(map[string]*autoprobe.PatternNode, len(tree.Nodes))
	for _, n := range tree.Nodes {
		nodes[n.ID] = n
		if n.Selector.IsBlank() {
			continue
		}
		if !e.Supports(n.Selector.Type) {
			return nil, autoprobe.Errorf(autoprobe.EINVALID, "node %s: unsupported selector type %s", n.ID, n.Selector.Type)
		}
		if n.Selector.Type == autoprobe.SelectorRegex {
			re, err := regexp.Compile(n.Selector.Text)
			if err != nil {
				return nil, autoprobe.Errorf(autoprobe.EINVALID, "node %s: invalid regex: %v", n.ID, err)
			}
			regexes[n.Selector.Text] = re
			continue
		}
		m, err := compileCSS(n.Selector.Text)
		if err != nil {
			return nil, autoprobe.Errorf(autoprobe.EINVALID, "node %s: invalid css selector: %v", n.ID, err)
		}
		compiled[n.Selector.Text] = m
	}

	base, err := url.Parse(doc.URL)
	if err != nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "invalid document URL: %v", err)
	}
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content))
	if err != nil {
		return nil, autoprobe.Errorf(autoprobe.EINVALID, "failed to parse HTML: %v", err)
	}

	w := &walker{
		ctx:       ctx,
		nodes:     nodes,
		regexes:   regexes,
		css:       compiled,
		base:      base,
		doc:       root.Selection,
		sanitizer: e.sanitizer,
		eval:      &autoprobe.Evaluation{},
	}
	w.children(nodes[tree.RootID], root.Selection, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.eval, nil
}

type walker struct {
	ctx       context.Context
	nodes     map[string]*autoprobe.PatternNode
	regexes   map[string]*regexp.Regexp
	css       map[string]cascadia.Selector
	base      *url.URL
	doc       *goquery.Selection
	sanitizer *bluemonday.Policy
	eval      *autoprobe.Evaluation
}

// children evaluates the children of an item node within scope.
func (w *walker) children(item *autoprobe.PatternNode, scope *goquery.Selection, path []int) {
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

func (w *walker) field(n *autoprobe.PatternNode, scope *goquery.Selection, path []int) {
	scope = w.scope(n.Selector, scope)
	if n.Selector.Type == autoprobe.SelectorRegex {
		m, ok := w.regexMatch(n.Selector, scope)
		if !ok {
			return
		}
		if n.ExtractionType == autoprobe.ExtractHTML {
			m = w.sanitize(m)
		}
		w.emit(n, path, strings.TrimSpace(m))
		return
	}

	match := w.find(n.Selector, scope).First()
	if match.Length() == 0 {
		return
	}
	switch n.ExtractionType {
	case autoprobe.ExtractText:
		w.emit(n, path, strings.TrimSpace(match.Text()))
	case autoprobe.ExtractAttribute:
		v, ok := match.Attr(n.AttributeName)
		if !ok {
			w.warn("%s: attribute %q missing on match", n.ID, n.AttributeName)
			return
		}
		w.emit(n, path, strings.TrimSpace(v))
	case autoprobe.ExtractHTML:
		html, err := match.Html()
		if err != nil {
			w.warn("%s: render html: %v", n.ID, err)
			return
		}
		w.emit(n, path, strings.TrimSpace(w.sanitize(html)))
	}
}

// action records the resolved link target of the first match. A
// page-level action provides the next page URL.
func (w *walker) action(n *autoprobe.PatternNode, scope *goquery.Selection, path []int) {
	scope = w.scope(n.Selector, scope)

	var target string
	if n.Selector.Type == autoprobe.SelectorRegex {
		m, ok := w.regexMatch(n.Selector, scope)
		if !ok {
			return
		}
		target = strings.TrimSpace(m)
	} else {
		match := w.find(n.Selector, scope).First()
		if match.Length() == 0 {
			return
		}
		href, ok := match.Attr("href")
		if !ok {
			w.emit(n, path, strings.TrimSpace(match.Text()))
			return
		}
		target = href
	}

	if isNonHTTPLink(target) {
		return
	}
	resolved := resolveURL(w.base, target)
	if resolved == "" {
		return
	}
	w.emit(n, path, resolved)
	if len(path) == 0 && w.eval.NextURL == "" {
		w.eval.NextURL = resolved
	}
}

func (w *walker) list(n *autoprobe.PatternNode, scope *goquery.Selection, path []int) {
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
	var instances []*goquery.Selection
	switch {
	case item.Selector.IsBlank():
		instances = w.matches(n.Selector, w.scope(n.Selector, scope))
	case !n.Selector.IsBlank():
		containers := w.matches(n.Selector, w.scope(n.Selector, scope))
		if len(containers) == 0 {
			return
		}
		instances = w.matches(item.Selector, w.scope(item.Selector, containers[0]))
	default:
		instances = w.matches(item.Selector, w.scope(item.Selector, scope))
	}

	for i, sel := range instances {
		if w.ctx.Err() != nil {
			return
		}
		itemPath := make([]int, len(path)+1)
		copy(itemPath, path)
		itemPath[len(path)] = i
		w.emit(item, itemPath, nil)
		w.children(item, sel, itemPath)
	}
}

// matches returns every match of sel within scope. Regex matches are
// parsed as HTML fragments so nested selectors can run inside them.
func (w *walker) matches(sel *autoprobe.Selector, scope *goquery.Selection) []*goquery.Selection {
	if sel.IsBlank() {
		return nil
	}
	if sel.Type != autoprobe.SelectorRegex {
		var out []*goquery.Selection
		w.find(sel, scope).Each(func(_ int, s *goquery.Selection) {
			out = append(out, s)
		})
		return out
	}

	var out []*goquery.Selection
	for _, m := range w.regexes[sel.Text].FindAllStringSubmatch(outerHTML(scope), -1) {
		fragment, err := goquery.NewDocumentFromReader(strings.NewReader(submatch(m)))
		if err != nil {
			continue
		}
		out = append(out, fragment.Selection)
	}
	return out
}

// find runs a compiled css selector over the descendants of scope.
func (w *walker) find(sel *autoprobe.Selector, scope *goquery.Selection) *goquery.Selection {
	if m, ok := w.css[sel.Text]; ok {
		return scope.FindMatcher(m)
	}
	return scope.Find(sel.Text)
}

func (w *walker) regexMatch(sel *autoprobe.Selector, scope *goquery.Selection) (string, bool) {
	m := w.regexes[sel.Text].FindStringSubmatch(outerHTML(scope))
	if m == nil {
		return "", false
	}
	return submatch(m), true
}

func (w *walker) scope(sel *autoprobe.Selector, scope *goquery.Selection) *goquery.Selection {
	if sel != nil && sel.IsAbsolute {
		return w.doc
	}
	return scope
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

func (w *walker) sanitize(html string) string {
	if w.sanitizer == nil {
		return html
	}
	return w.sanitizer.Sanitize(html)
}

func compileCSS(text string) (cascadia.Selector, error) {
	return cascadia.Compile(text)
}

// submatch returns the first capture group, or the whole match.
func submatch(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// outerHTML renders every node of s.
func outerHTML(s *goquery.Selection) string {
	var b strings.Builder
	s.Each(func(_ int, one *goquery.Selection) {
		html, err := goquery.OuterHtml(one)
		if err == nil {
			b.WriteString(html)
		}
	})
	return b.String()
}

// resolveURL resolves a relative URL against a base URL.
// Returns empty string if the href cannot be parsed or if the resolved URL
// is self-referential (same as base URL after stripping fragment).
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""

	result := resolved.String()
	baseNoFragment := *base
	baseNoFragment.Fragment = ""
	if result == baseNoFragment.String() {
		return ""
	}
	return result
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
