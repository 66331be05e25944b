// Package mock provides an in-memory test double for [memory.MessageStore].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use.
//
// Typical usage:
//
//	store := &mock.MessageStore{}
//	store.ListResult = []memory.Record{{User: "AI", Text: "namaste"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Append"); got != 1 {
//	    t.Errorf("expected 1 Append call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/saathi/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// MessageStore is a configurable test double for [memory.MessageStore] and
// [memory.Pinger].
type MessageStore struct {
	mu sync.Mutex

	calls    []Call
	appended []memory.Record

	// AppendErr is returned by Append when non-nil.
	AppendErr error

	// ListResult is returned by List. When nil, List returns the appended
	// records newest first.
	ListResult []memory.Record

	// ListErr is returned by List when non-nil.
	ListErr error

	// PingErr is returned by Ping.
	PingErr error
}

var (
	_ memory.MessageStore = (*MessageStore)(nil)
	_ memory.Pinger       = (*MessageStore)(nil)
)

// Calls returns a copy of all recorded method invocations.
func (m *MessageStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *MessageStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Appended returns a copy of the successfully appended records, oldest
// first.
func (m *MessageStore) Appended() []memory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Record, len(m.appended))
	copy(out, m.appended)
	return out
}

// Append implements [memory.MessageStore]. IDs are assigned sequentially.
func (m *MessageStore) Append(_ context.Context, r memory.Record) (memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Append", Args: []any{r}})
	if m.AppendErr != nil {
		return memory.Record{}, m.AppendErr
	}
	if err := r.Validate(); err != nil {
		return memory.Record{}, err
	}
	r.ID = fmt.Sprintf("mock-%d", len(m.appended)+1)
	m.appended = append(m.appended, r)
	return r, nil
}

// List implements [memory.MessageStore].
func (m *MessageStore) List(_ context.Context, opts ...memory.ListOpt) ([]memory.Record, error) {
	p := memory.ApplyListOpts(opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "List", Args: []any{p}})
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	src := m.ListResult
	if src == nil {
		src = make([]memory.Record, 0, len(m.appended))
		for i := len(m.appended) - 1; i >= 0; i-- {
			src = append(src, m.appended[i])
		}
	}
	out := make([]memory.Record, 0, len(src))
	for _, r := range src {
		if p.Session != "" && r.Session != p.Session {
			continue
		}
		out = append(out, r)
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

// Ping implements [memory.Pinger].
func (m *MessageStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Ping"})
	return m.PingErr
}
