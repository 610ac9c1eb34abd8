package mock

import (
	"context"
	"sync"

	"github.com/zerotier/zeronsd/central"
)

// Source is a central.Source whose member list and error are set by tests. It is safe
// for concurrent use.
type Source struct {
	mu      sync.Mutex
	members []central.Member
	err     error
	calls   int
}

// Set replaces the members returned by subsequent calls and clears any error.
func (t *Source) Set(members ...central.Member) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = append([]central.Member{}, members...)
	t.err = nil
}

// Fail causes subsequent calls to return err.
func (t *Source) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Calls returns how many times Members has been called.
func (t *Source) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

func (t *Source) Members(ctx context.Context, network string) ([]central.Member, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return append([]central.Member{}, t.members...), nil
}
