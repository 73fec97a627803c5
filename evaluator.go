package autoprobe

import "context"

// Document is a fetched target ready for evaluation.
type Document struct {
	URL     string
	Content string
}

// Evaluation is the output of evaluating a pattern against one document.
type Evaluation struct {
	// Records carry node ids, instance paths and values; TaskID is left
	// for the caller to fill in.
	Records []*ExtractionRecord

	// NextURL is the resolved target of the page-level pagination action,
	// or empty when there is none.
	NextURL string

	// Warnings describe matches the evaluator skipped, such as an
	// attribute missing on a matched element.
	Warnings []string
}

// Evaluator matches a pattern tree against a document. It is the
// collaborator that turns selectors into extraction records.
type Evaluator interface {
	// Evaluate returns the records produced by tree on doc.
	// Returns EINVALID if tree uses a selector type the evaluator does not
	// support or a selector that does not compile.
	Evaluate(ctx context.Context, tree *PatternTree, doc *Document) (*Evaluation, error)

	// Supports reports whether the evaluator handles selectors of type t.
	Supports(t SelectorType) bool
}

// Fetcher retrieves the raw content of a target.
// Implementations may use browser automation to handle JavaScript-rendered content.
type Fetcher interface {
	// Fetch returns the document content at url.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string) (content string, err error)

	// Close releases resources held by the fetcher.
	Close() error
}

// SnapshotStore keeps the raw documents a task was evaluated against.
type SnapshotStore interface {
	// Save stores content for page n of a task and returns a reference.
	Save(ctx context.Context, taskID string, n int, content string) (ref string, err error)

	// Load returns the content stored under ref.
	// Returns ENOTFOUND if no snapshot exists.
	Load(ctx context.Context, ref string) (string, error)
}

// GeometryCollector measures the on-page boxes of a tree's matches.
type GeometryCollector interface {
	Collect(ctx context.Context, tree *PatternTree, url string) (GeometryHints, error)
}

// DomainLimiter provides per-domain rate limiting.
type DomainLimiter interface {
	// Wait blocks until the rate limit allows a request to the domain.
	// Returns an error if the context is canceled.
	Wait(ctx context.Context, domain string) error
}

// VisitedSet remembers the pages a task has already evaluated so that
// pagination loops terminate.
type VisitedSet interface {
	// Visit marks url as visited. Returns false if it was already seen.
	Visit(url string) bool
}
