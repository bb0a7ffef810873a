package main

import (
	"context"
	"errors"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	themeKey   = "markview-theme"
	themeLight = "light"
	themeDark  = "dark"
)

var errControllerStopped = errors.New("controller stopped")

// Events published to the display
const (
	eventFolderOpened     = "folder-opened"
	eventFilesUpdated     = "files-updated"
	eventFileSelected     = "file-selected"
	eventFileRefreshed    = "file-refreshed"
	eventSelectionCleared = "selection-cleared"
	eventAlert            = "alert"
	eventThemeChanged     = "theme-changed"
)

// fileReadResult is the host's answer to a read request
type fileReadResult struct {
	Success bool      `json:"success"`
	Content string    `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"modTime"`
}

type fileReader interface {
	ReadFile(path string) fileReadResult
}

// osFileReader reads straight from disk
type osFileReader struct{}

func (osFileReader) ReadFile(path string) fileReadResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return fileReadResult{Error: err.Error()}
	}
	res := fileReadResult{Success: true, Content: string(content), Size: int64(len(content))}
	if info, err := os.Stat(path); err == nil {
		res.ModTime = info.ModTime()
	}
	return res
}

type settingsStore interface {
	GetString(key string) string
	Set(key string, value any) error
}

type publisher interface {
	publish(evt viewEvent)
}

type discardPublisher struct{}

func (discardPublisher) publish(viewEvent) {}

// viewEvent is a notification from the controller to the display
type viewEvent struct {
	Type    string     `json:"type"`
	Root    string     `json:"root,omitempty"`
	Files   FileSet    `json:"files,omitempty"`
	Count   int        `json:"count"`
	File    *FileEntry `json:"file,omitempty"`
	HTML    string     `json:"html,omitempty"`
	Size    int64      `json:"size,omitempty"`
	ModTime time.Time  `json:"modTime"`
	Kind    alertKind  `json:"kind,omitempty"`
	Message string     `json:"message,omitempty"`
	Theme   string     `json:"theme,omitempty"`
}

// viewSnapshot is a read-only copy of the controller state
type viewSnapshot struct {
	Root    string     `json:"root"`
	Files   FileSet    `json:"files"`
	Current *FileEntry `json:"current,omitempty"`
	HTML    string     `json:"html,omitempty"`
	Size    int64      `json:"size,omitempty"`
	ModTime time.Time  `json:"modTime"`
	Theme   string     `json:"theme"`
	Query   string     `json:"query"`
	Loading bool       `json:"loading"`
}

type pendingRead struct {
	token   uint64
	entry   FileEntry
	refresh bool
}

// viewState is owned by the controller goroutine. Nothing else reads or
// writes it; other goroutines get copies through snapshot.
type viewState struct {
	root    string
	files   FileSet
	index   *searchIndex
	current *FileEntry
	html    string
	size    int64
	modTime time.Time
	theme   string
	query   string

	// generation is bumped for every read issued; only the result carrying
	// the latest token is applied.
	generation uint64
	pending    *pendingRead
}

// Inbox messages
type (
	openFolderMsg struct {
		root  string
		files FileSet
	}
	watchMsg       struct{ evt watchEvent }
	selectMsg      struct{ path string }
	refreshMsg     struct{}
	followLinkMsg  struct{ href string }
	clearSelectMsg struct{}
	toggleThemeMsg struct{}
	searchMsg      struct {
		query string
		reply chan FileSet
	}
	snapshotMsg struct{ reply chan viewSnapshot }
	readDoneMsg struct {
		token  uint64
		entry  FileEntry
		result fileReadResult
	}
)

// controller owns the UI state and processes one message at a time.
type controller struct {
	inbox  chan any
	done   chan struct{}
	reader fileReader
	render renderFunc
	store  settingsStore
	out    publisher
	state  viewState
}

func newController(reader fileReader, render renderFunc, store settingsStore, out publisher) *controller {
	if out == nil {
		out = discardPublisher{}
	}
	if render == nil {
		render = renderMarkdown
	}
	theme := themeLight
	if store != nil && store.GetString(themeKey) == themeDark {
		theme = themeDark
	}
	return &controller{
		inbox:  make(chan any, 64),
		done:   make(chan struct{}),
		reader: reader,
		render: render,
		store:  store,
		out:    out,
		state:  viewState{theme: theme, index: newSearchIndex(nil)},
	}
}

// run processes messages until ctx is cancelled
func (c *controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

func (c *controller) post(msg any) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *controller) openFolder(root string, files FileSet) {
	c.post(openFolderMsg{root: root, files: files})
}

func (c *controller) watchEvent(evt watchEvent) {
	c.post(watchMsg{evt: evt})
}

func (c *controller) selectPath(path string) {
	c.post(selectMsg{path: path})
}

func (c *controller) refresh() {
	c.post(refreshMsg{})
}

func (c *controller) followLink(href string) {
	c.post(followLinkMsg{href: href})
}

func (c *controller) clearSelection() {
	c.post(clearSelectMsg{})
}

func (c *controller) toggleTheme() {
	c.post(toggleThemeMsg{})
}

func (c *controller) search(ctx context.Context, query string) (FileSet, error) {
	reply := make(chan FileSet, 1)
	if !c.post(searchMsg{query: query, reply: reply}) {
		return nil, errControllerStopped
	}
	select {
	case files := <-reply:
		return files, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errControllerStopped
	}
}

func (c *controller) snapshot(ctx context.Context) (viewSnapshot, error) {
	reply := make(chan viewSnapshot, 1)
	if !c.post(snapshotMsg{reply: reply}) {
		return viewSnapshot{}, errControllerStopped
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return viewSnapshot{}, ctx.Err()
	case <-c.done:
		return viewSnapshot{}, errControllerStopped
	}
}

func (c *controller) handle(msg any) {
	st := &c.state

	switch m := msg.(type) {
	case openFolderMsg:
		st.root = m.root
		st.files = m.files
		st.index = newSearchIndex(m.files)
		st.current = nil
		st.html = ""
		st.size, st.modTime = 0, time.Time{}
		st.query = ""
		st.pending = nil
		log.WithFields(log.Fields{"root": m.root, "files": len(m.files)}).Info("Folder opened")
		c.out.publish(viewEvent{Type: eventFolderOpened, Root: m.root, Files: m.files, Count: len(m.files)})
		if len(m.files) > 0 {
			c.selectFile(m.files[0], false)
		}

	case watchMsg:
		if m.evt.root != st.root {
			log.Debugf("Dropping %s event from previous root %s", m.evt.kind, m.evt.root)
			return
		}
		switch m.evt.kind {
		case watchFilesUpdated:
			st.files = m.evt.files
			st.index = newSearchIndex(m.evt.files)
			c.out.publish(viewEvent{Type: eventFilesUpdated, Root: st.root, Files: m.evt.files, Count: len(m.evt.files)})
		case watchFileChanged:
			if st.current != nil && st.current.Path == m.evt.path {
				c.refreshCurrent()
			}
		}

	case selectMsg:
		entry, ok := st.files.find(m.path)
		if !ok {
			c.alert(&viewError{kind: alertReadFailed, path: m.path, err: errFileNotFound})
			return
		}
		c.selectFile(entry, false)

	case refreshMsg:
		c.refreshCurrent()

	case followLinkMsg:
		entry, ok := resolveLink(st.files, m.href)
		if !ok {
			c.alert(&viewError{kind: alertLinkNotFound, path: m.href, err: errFileNotFound})
			return
		}
		c.selectFile(entry, false)

	case clearSelectMsg:
		st.current = nil
		st.html = ""
		st.size, st.modTime = 0, time.Time{}
		st.pending = nil
		c.out.publish(viewEvent{Type: eventSelectionCleared})

	case toggleThemeMsg:
		if st.theme == themeDark {
			st.theme = themeLight
		} else {
			st.theme = themeDark
		}
		if c.store != nil {
			if err := c.store.Set(themeKey, st.theme); err != nil {
				log.Printf("Warning: cannot persist theme: %v", err)
			}
		}
		c.out.publish(viewEvent{Type: eventThemeChanged, Theme: st.theme})

	case searchMsg:
		st.query = m.query
		m.reply <- st.index.search(m.query)

	case snapshotMsg:
		m.reply <- c.snapshotState()

	case readDoneMsg:
		c.applyRead(m)

	default:
		log.Printf("Warning: unknown controller message %T", msg)
	}
}

// selectFile starts loading entry unless it is already shown or loading.
// refresh forces a new read of the same entry.
func (c *controller) selectFile(entry FileEntry, refresh bool) {
	st := &c.state
	if !refresh {
		if st.current != nil && st.current.Path == entry.Path {
			// Going back to the shown file cancels a pending switch away from it
			if st.pending != nil && st.pending.entry.Path != entry.Path {
				log.Debugf("Cancelling pending read of %s", st.pending.entry.Path)
				st.generation++
				st.pending = nil
			}
			return
		}
		if st.pending != nil && st.pending.entry.Path == entry.Path {
			return
		}
	}

	st.generation++
	token := st.generation
	st.pending = &pendingRead{token: token, entry: entry, refresh: refresh}

	go func() {
		res := c.reader.ReadFile(entry.Path)
		c.post(readDoneMsg{token: token, entry: entry, result: res})
	}()
}

// refreshCurrent re-reads the current file. A pending switch to another file
// wins over the refresh.
func (c *controller) refreshCurrent() {
	st := &c.state
	if st.current == nil {
		return
	}
	if st.pending != nil && st.pending.entry.Path != st.current.Path {
		return
	}
	c.selectFile(*st.current, true)
}

func (c *controller) applyRead(m readDoneMsg) {
	st := &c.state
	if st.pending == nil || m.token != st.generation {
		log.Debugf("Discarding stale read of %s", m.entry.Path)
		return
	}
	refresh := st.pending.refresh
	st.pending = nil

	if !m.result.Success {
		c.alert(&viewError{kind: alertReadFailed, path: m.entry.Path, err: errors.New(m.result.Error)})
		return
	}

	html, err := c.render([]byte(m.result.Content))
	if err != nil {
		c.alert(&viewError{kind: alertRenderFailed, path: m.entry.Path, err: err})
		return
	}

	entry := m.entry
	st.current = &entry
	st.html = html
	st.size = m.result.Size
	st.modTime = m.result.ModTime

	evtType := eventFileSelected
	if refresh {
		evtType = eventFileRefreshed
	}
	c.out.publish(viewEvent{
		Type:    evtType,
		File:    &entry,
		HTML:    html,
		Size:    st.size,
		ModTime: st.modTime,
	})
}

func (c *controller) alert(err *viewError) {
	log.WithFields(log.Fields{"kind": err.kind, "path": err.path}).Warn(err.Error())
	c.out.publish(viewEvent{Type: eventAlert, Kind: err.kind, Message: err.Error()})
}

// snapshotState copies the state. Only called from the controller goroutine.
func (c *controller) snapshotState() viewSnapshot {
	st := &c.state
	snap := viewSnapshot{
		Root:    st.root,
		Files:   st.files.clone(),
		HTML:    st.html,
		Size:    st.size,
		ModTime: st.modTime,
		Theme:   st.theme,
		Query:   st.query,
		Loading: st.pending != nil,
	}
	if st.current != nil {
		cur := *st.current
		snap.Current = &cur
	}
	return snap
}
