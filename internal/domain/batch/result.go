// Package batch describes per-flag outcomes of an offline corpus build.
package batch

// ItemStatus is the processing outcome of a single flag.
type ItemStatus string

// Item status values.
const (
	StatusOK      ItemStatus = "ok"
	StatusSkipped ItemStatus = "skipped"
)

// Result is the outcome of encoding one flag's reference image.
type Result struct {
	name   string
	index  int
	status ItemStatus
	err    error
}

// NewOK records a flag that was encoded and kept at the given corpus row.
func NewOK(name string, index int) Result {
	return Result{name: name, index: index, status: StatusOK}
}

// NewSkipped records a flag dropped from the corpus, entry and row together.
func NewSkipped(name string, err error) Result {
	return Result{name: name, index: -1, status: StatusSkipped, err: err}
}

// Name returns the flag name.
func (r Result) Name() string { return r.name }

// Index returns the row in the written corpus, or -1 when skipped.
func (r Result) Index() int { return r.index }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns why the flag was skipped.
func (r Result) Err() error { return r.err }

// Count tallies results by status.
func Count(results []Result) (ok, skipped int) {
	for _, r := range results {
		if r.status == StatusOK {
			ok++
		} else {
			skipped++
		}
	}
	return ok, skipped
}
