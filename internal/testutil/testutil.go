// Package testutil provides shared helpers for exercising whole pipelines in
// tests: an inline-HCL harness that loads, expands, validates, and runs a
// pipeline, plus small building blocks for registering test task handlers.
package testutil

import (
	"bytes"
	"context"
	"sync"

	"github.com/vk/gridflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TaskModule registers a single task type backed by the given handler.
type TaskModule struct {
	Name string
	Fn   registry.Handler
}

// Register implements registry.Module.
func (m *TaskModule) Register(r *registry.Registry) {
	r.Register(m.Name, m.Fn)
}

// NoopModule registers the given task types with handlers that succeed
// immediately and return an empty object.
type NoopModule struct {
	Names []string
}

// Register implements registry.Module.
func (m *NoopModule) Register(r *registry.Registry) {
	for _, name := range m.Names {
		r.Register(name, func(context.Context, cty.Value) (cty.Value, error) {
			return cty.EmptyObjectVal, nil
		})
	}
}

// RecorderModule registers task types that record every invocation, keyed by
// stage-agnostic call order. Handlers default to success; per-type failures
// can be injected through Fail.
type RecorderModule struct {
	// Names are the task types to register.
	Names []string
	// Fail maps a task type to an error every invocation returns.
	Fail map[string]error
	// Output maps a task type to the value successful invocations return.
	// Types without an entry return an empty object.
	Output map[string]cty.Value

	mu    sync.Mutex
	calls []string
}

// Register implements registry.Module.
func (m *RecorderModule) Register(r *registry.Registry) {
	for _, name := range m.Names {
		name := name
		r.Register(name, func(_ context.Context, _ cty.Value) (cty.Value, error) {
			m.mu.Lock()
			m.calls = append(m.calls, name)
			m.mu.Unlock()
			if err, ok := m.Fail[name]; ok && err != nil {
				return cty.NilVal, err
			}
			if out, ok := m.Output[name]; ok {
				return out, nil
			}
			return cty.EmptyObjectVal, nil
		})
	}
}

// Calls returns the recorded invocations in order.
func (m *RecorderModule) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the given task type ran.
func (m *RecorderModule) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}
