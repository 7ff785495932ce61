package engine

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Aggregator collects batch submission failures across a run without
// stopping unrelated work. Failures are deduplicated by message text:
// a flaky endpoint rejecting forty batches the same way reports one
// line, not forty.
type Aggregator struct {
	seen     map[string]struct{}
	distinct []string
	total    int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add records a submission failure.
func (a *Aggregator) Add(err error) {
	if err == nil {
		return
	}
	a.total++
	msg := err.Error()
	if _, ok := a.seen[msg]; ok {
		return
	}
	a.seen[msg] = struct{}{}
	a.distinct = append(a.distinct, msg)
}

// Total returns the number of failures recorded, duplicates included.
func (a *Aggregator) Total() int {
	return a.total
}

// Distinct returns the distinct failure messages in first-seen order.
func (a *Aggregator) Distinct() []string {
	return append([]string(nil), a.distinct...)
}

// Err returns nil if no failures were recorded, otherwise one
// composite error listing each distinct message once.
func (a *Aggregator) Err() error {
	if a.total == 0 {
		return nil
	}

	var result *multierror.Error
	result = &multierror.Error{ErrorFormat: a.format}
	for _, msg := range a.distinct {
		result = multierror.Append(result, fmt.Errorf("%s", msg))
	}
	return result.ErrorOrNil()
}

func (a *Aggregator) format(errs []error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d submission failure(s), %d distinct:", a.total, len(errs))
	for _, err := range errs {
		b.WriteString("\n  => ")
		b.WriteString(err.Error())
	}
	return b.String()
}
