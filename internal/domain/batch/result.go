package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusCreated ItemStatus = "created"
	StatusUpdated ItemStatus = "updated"
	StatusError   ItemStatus = "error"
)

// Result is the outcome of loading one context record.
type Result struct {
	line   int
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful result; created distinguishes inserts from replacements.
func NewOK(line int, id string, created bool) Result {
	if created {
		return Result{line: line, id: id, status: StatusCreated}
	}
	return Result{line: line, id: id, status: StatusUpdated}
}

// NewError creates a failed result.
func NewError(line int, id string, err error) Result {
	return Result{line: line, id: id, status: StatusError, err: err}
}

// Line returns the 1-based position of the item in its input.
func (r Result) Line() int { return r.line }

// ID returns the context identifier, empty when the item could not be parsed.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Offset returns the result shifted by n lines, for items loaded in chunks.
func (r Result) Offset(n int) Result {
	r.line += n
	return r
}

// OK reports whether the item was stored.
func (r Result) OK() bool { return r.status != StatusError }

// Summary counts outcomes over a set of results.
type Summary struct {
	Created int
	Updated int
	Failed  int
}

// Summarize tallies results by status.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.status {
		case StatusCreated:
			s.Created++
		case StatusUpdated:
			s.Updated++
		default:
			s.Failed++
		}
	}
	return s
}
