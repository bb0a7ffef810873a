package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestMarkdownFile creates a file (and its parent directories) below dir
func createTestMarkdownFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// testFileSet builds a normalized FileSet for relative paths under root
func testFileSet(root string, rels ...string) FileSet {
	entries := make([]FileEntry, 0, len(rels))
	for _, rel := range rels {
		entries = append(entries, newFileEntry(root, filepath.Join(root, filepath.FromSlash(rel))))
	}
	return normalizeFileSet(entries)
}

// fakeReader serves canned content and counts reads per path. A gated path
// blocks until its gate is closed.
type fakeReader struct {
	mu       sync.Mutex
	contents map[string]string
	failures map[string]string
	gates    map[string]chan struct{}
	reads    map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		contents: make(map[string]string),
		failures: make(map[string]string),
		gates:    make(map[string]chan struct{}),
		reads:    make(map[string]int),
	}
}

func (r *fakeReader) set(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents[path] = content
}

func (r *fakeReader) fail(path, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = msg
}

// gate makes reads of path block until the returned func is called
func (r *fakeReader) gate(path string) func() {
	ch := make(chan struct{})
	r.mu.Lock()
	r.gates[path] = ch
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (r *fakeReader) readCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[path]
}

func (r *fakeReader) ReadFile(path string) fileReadResult {
	r.mu.Lock()
	r.reads[path]++
	gate := r.gates[path]
	content, ok := r.contents[path]
	failure := r.failures[path]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failure != "" {
		return fileReadResult{Error: failure}
	}
	if !ok {
		return fileReadResult{Error: "no such file"}
	}
	return fileReadResult{Success: true, Content: content, Size: int64(len(content)), ModTime: time.Unix(1700000000, 0)}
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []viewEvent
}

func (p *recordingPublisher) publish(evt viewEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(typ string) []viewEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []viewEvent
	for _, evt := range p.events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// waitFor blocks until at least n events of typ were published
func (p *recordingPublisher) waitFor(t *testing.T, typ string, n int) []viewEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(p.ofType(typ)) >= n
	}, 2*time.Second, 10*time.Millisecond, "waiting for %d %s events", n, typ)
	return p.ofType(typ)
}

// memStore is an in-memory settingsStore
type memStore struct {
	mu     sync.Mutex
	values map[string]any
	err    error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]any)}
}

func (s *memStore) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	str, _ := s.values[key].(string)
	return str
}

func (s *memStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

var errRenderBroken = errors.New("renderer exploded")

// failingRender fails for sources equal to "BROKEN"
func failingRender(source []byte) (string, error) {
	if string(source) == "BROKEN" {
		return "", errRenderBroken
	}
	return renderMarkdown(source)
}

// newTestController builds a controller that is not running, so tests can
// drive handle and drain read results one at a time.
func newTestController(reader fileReader, render renderFunc) (*controller, *recordingPublisher) {
	pub := &recordingPublisher{}
	return newController(reader, render, newMemStore(), pub), pub
}

// nextRead waits for the next read result posted to the inbox
func nextRead(t *testing.T, c *controller) readDoneMsg {
	t.Helper()
	select {
	case msg := <-c.inbox:
		done, ok := msg.(readDoneMsg)
		require.True(t, ok, "expected readDoneMsg, got %T", msg)
		return done
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file read")
		return readDoneMsg{}
	}
}

// settle applies the next read result
func settle(t *testing.T, c *controller) {
	t.Helper()
	c.handle(nextRead(t, c))
}

// startController runs a controller until the test ends
func startController(t *testing.T, reader fileReader, render renderFunc) (*controller, *recordingPublisher) {
	t.Helper()
	c, pub := newTestController(reader, render)
	ctx, cancel := context.WithCancel(context.Background())
	go c.run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.done
	})
	return c, pub
}

// newTestApp opens dir in a running app whose settings live in a temp dir
func newTestApp(t *testing.T, dir string) *app {
	t.Helper()
	store, err := newConfigStore(t.TempDir())
	require.NoError(t, err)

	a := newApp(loadConfig(store), store)
	a.start(context.Background())
	t.Cleanup(a.close)

	if dir != "" {
		_, err := a.openFolder(dir)
		require.NoError(t, err)
	}
	return a
}

// newTestServer returns a server for an app browsing dir
func newTestServer(t *testing.T, dir string) *server {
	t.Helper()
	a := newTestApp(t, dir)
	srv, err := newServer(a, defaultPort)
	require.NoError(t, err)
	srv.copyText = func(string) error { return nil }
	return srv
}

// currentSnapshot fetches the controller state
func currentSnapshot(t *testing.T, c *controller) viewSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := c.snapshot(ctx)
	require.NoError(t, err)
	return snap
}
