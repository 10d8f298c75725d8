package payment

import (
	"context"
	"encoding/json"
	"sync"
)

type postCall struct {
	path string
	body any
}

// mockBackend answers each path with a canned reply or error.
type mockBackend struct {
	m       sync.RWMutex
	replies map[string]string
	errs    map[string]error
	calls   []postCall
}

func newMockBackend() *mockBackend {
	return &mockBackend{replies: map[string]string{}, errs: map[string]error{}}
}

func (m *mockBackend) reply(path, body string) *mockBackend {
	m.m.Lock()
	defer m.m.Unlock()
	m.replies[path] = body
	return m
}

func (m *mockBackend) fail(path string, err error) *mockBackend {
	m.m.Lock()
	defer m.m.Unlock()
	m.errs[path] = err
	return m
}

func (m *mockBackend) Post(_ context.Context, path string, body, out any) error {
	m.m.Lock()
	m.calls = append(m.calls, postCall{path: path, body: body})
	err := m.errs[path]
	reply, ok := m.replies[path]
	m.m.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		reply = `{}`
	}
	return json.Unmarshal([]byte(reply), out)
}

func (m *mockBackend) CallsTo(path string) int {
	m.m.RLock()
	defer m.m.RUnlock()
	n := 0
	for _, c := range m.calls {
		if c.path == path {
			n++
		}
	}
	return n
}

func (m *mockBackend) LastBody(path string) any {
	m.m.RLock()
	defer m.m.RUnlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].path == path {
			return m.calls[i].body
		}
	}
	return nil
}
