package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
)

//go:embed theme/*
var themeFS embed.FS

const requestTimeout = 5 * time.Second

// server is the HTTP face of the app. The page is the display; every user
// action comes back here as a POST and is posted to the controller.
type server struct {
	app       *app
	port      int
	indexTmpl *template.Template
	assets    map[string][]byte
	copyText  func(string) error
}

// indexTemplateData feeds theme/index.html
type indexTemplateData struct {
	Theme    string
	Root     string
	TreeHTML template.HTML
	Content  template.HTML
	Current  *FileEntry
	Crumbs   []string
	Count    int
	Size     string
	Modified string
}

func newServer(a *app, port int) (*server, error) {
	tmpl, err := template.ParseFS(themeFS, "theme/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}

	assets := make(map[string][]byte)
	for _, name := range []string{"markview.css", "markview.js"} {
		data, err := themeFS.ReadFile("theme/" + name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		assets[name] = data
	}
	for name, style := range map[string]string{"chroma-light.css": lightCodeStyle, "chroma-dark.css": darkCodeStyle} {
		css, err := chromaCSS(style)
		if err != nil {
			return nil, err
		}
		assets[name] = []byte(css)
	}

	return &server{
		app:       a,
		port:      port,
		indexTmpl: tmpl,
		assets:    assets,
		copyText:  clipboard.WriteAll,
	}, nil
}

// routes registers all HTTP routes
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", withRecovery(s.serveIndex))
	mux.HandleFunc("/tree", withRecovery(s.serveTree))
	mux.HandleFunc("/api/state", withRecovery(s.serveState))
	mux.HandleFunc("/events", withRecovery(s.app.hub.serveSSE))
	mux.HandleFunc("/assets/", withRecovery(s.serveAsset))
	mux.HandleFunc("/raw", withRecovery(s.serveRaw))

	mux.HandleFunc("/open", withRecovery(s.withCSRFCheck(s.handleOpen)))
	mux.HandleFunc("/select", withRecovery(s.withCSRFCheck(s.handleSelect)))
	mux.HandleFunc("/refresh", withRecovery(s.withCSRFCheck(s.handleRefresh)))
	mux.HandleFunc("/clear", withRecovery(s.withCSRFCheck(s.handleClear)))
	mux.HandleFunc("/link", withRecovery(s.withCSRFCheck(s.handleLink)))
	mux.HandleFunc("/theme", withRecovery(s.withCSRFCheck(s.handleTheme)))
	mux.HandleFunc("/copy", withRecovery(s.withCSRFCheck(s.handleCopy)))
	mux.HandleFunc("/download", withRecovery(s.withCSRFCheck(s.handleDownload)))
	return mux
}

// withRecovery wraps an HTTP handler with panic recovery
func withRecovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n%s", err, debug.Stack())
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// withCSRFCheck rejects non-POST and cross-origin requests
func (s *server) withCSRFCheck(next http.HandlerFunc) http.HandlerFunc {
	allowedLocal := fmt.Sprintf("http://localhost:%d", s.port)
	allowedLoopback := fmt.Sprintf("http://127.0.0.1:%d", s.port)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" && origin != allowedLocal && origin != allowedLoopback {
			log.Printf("CSRF: rejected cross-origin POST from %s", origin)
			http.Error(w, "Forbidden: cross-origin request", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *server) snapshot(r *http.Request) (viewSnapshot, error) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	return s.app.ctrl.snapshot(ctx)
}

func (s *server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	snap, err := s.snapshot(r)
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	data := indexTemplateData{
		Theme:   snap.Theme,
		Root:    snap.Root,
		Content: template.HTML(snap.HTML),
		Current: snap.Current,
		Count:   len(snap.Files),
	}
	if snap.Root != "" {
		current := ""
		if snap.Current != nil {
			current = snap.Current.Path
		}
		data.TreeHTML = template.HTML(renderFileTree(snap.Files, current))
	}
	if snap.Current != nil {
		data.Crumbs = breadcrumb(snap.Current.RelativePath)
		data.Size = formatSize(snap.Size)
		if !snap.ModTime.IsZero() {
			data.Modified = snap.ModTime.Format("2006-01-02 15:04")
		}
	}

	var buf bytes.Buffer
	if err := s.indexTmpl.Execute(&buf, data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *server) serveTree(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	files, err := s.app.ctrl.search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	snap, err := s.app.ctrl.snapshot(ctx)
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	current := ""
	if snap.Current != nil {
		current = snap.Current.Path
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(renderFileTree(files, current))); err != nil {
		log.Printf("Failed to write tree HTML response: %v", err)
	}
}

func (s *server) serveState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) serveAsset(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/assets/")
	data, ok := s.assets[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch path.Ext(name) {
	case ".css":
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
	case ".js":
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	}
	w.Write(data)
}

// whitelisted returns the entry for filePath if it is in the current file set
func (s *server) whitelisted(r *http.Request, filePath string) (FileEntry, bool) {
	snap, err := s.snapshot(r)
	if err != nil {
		return FileEntry{}, false
	}
	return snap.Files.find(filePath)
}

func (s *server) serveRaw(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.whitelisted(r, r.URL.Query().Get("path"))
	if !ok {
		http.Error(w, errNotInFileSet.Error(), http.StatusForbidden)
		return
	}

	content, err := os.ReadFile(entry.Path)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(content); err != nil {
		log.Printf("Failed to write raw file response: %v", err)
	}
}

type pathRequest struct {
	Path string `json:"path"`
	Href string `json:"href"`
}

func decodePathRequest(r *http.Request) (pathRequest, error) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	req.Path = strings.TrimSpace(req.Path)
	req.Href = strings.TrimSpace(req.Href)
	return req, nil
}

func (s *server) handleOpen(w http.ResponseWriter, r *http.Request) {
	req, err := decodePathRequest(r)
	if err != nil || req.Path == "" {
		http.Error(w, "Missing directory path", http.StatusBadRequest)
		return
	}

	root, err := s.app.openFolder(req.Path)
	if err != nil {
		log.WithField("path", req.Path).Warnf("Cannot open folder: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": root})
}

func (s *server) handleSelect(w http.ResponseWriter, r *http.Request) {
	req, err := decodePathRequest(r)
	if err != nil || req.Path == "" {
		http.Error(w, "Missing file path", http.StatusBadRequest)
		return
	}
	s.app.ctrl.selectPath(req.Path)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.app.ctrl.refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.app.ctrl.clearSelection()
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleLink(w http.ResponseWriter, r *http.Request) {
	req, err := decodePathRequest(r)
	if err != nil || req.Href == "" {
		http.Error(w, "Missing link target", http.StatusBadRequest)
		return
	}
	if !isInternalLink(req.Href) {
		http.Error(w, "Not a Markdown link", http.StatusBadRequest)
		return
	}
	s.app.ctrl.followLink(req.Href)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleTheme(w http.ResponseWriter, r *http.Request) {
	s.app.ctrl.toggleTheme()
	w.WriteHeader(http.StatusAccepted)
}

// handleCopy puts the raw Markdown of a file on the host clipboard. With no
// path the current file is copied.
func (s *server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if r.ContentLength != 0 {
		decoded, err := decodePathRequest(r)
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		req = decoded
	}

	snap, err := s.snapshot(r)
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	target := req.Path
	if target == "" && snap.Current != nil {
		target = snap.Current.Path
	}
	entry, ok := snap.Files.find(target)
	if !ok {
		http.Error(w, errNotInFileSet.Error(), http.StatusForbidden)
		return
	}

	content, err := os.ReadFile(entry.Path)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	if err := s.copyText(string(content)); err != nil {
		log.Printf("Clipboard write failed: %v", err)
		http.Error(w, "Clipboard unavailable", http.StatusInternalServerError)
		return
	}
	log.WithField("path", entry.Path).Info("Copied Markdown to clipboard")
	writeJSON(w, http.StatusOK, map[string]int{"bytes": len(content)})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	req, err := decodePathRequest(r)
	if err != nil || req.Path == "" {
		http.Error(w, "Missing file path", http.StatusBadRequest)
		return
	}

	entry, ok := s.whitelisted(r, req.Path)
	if !ok {
		http.Error(w, errNotInFileSet.Error(), http.StatusForbidden)
		return
	}

	content, err := os.ReadFile(entry.Path)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	doc, err := exportHTML(entry.Name, content, renderMarkdown)
	if err != nil {
		log.Printf("Export of %s failed: %v", entry.Path, err)
		http.Error(w, "Failed to render markdown", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(entry.Name)))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(doc)))
	if _, err := w.Write(doc); err != nil {
		log.Printf("Failed to write download response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

// breadcrumb splits a slash separated relative path into its segments
func breadcrumb(relPath string) []string {
	if relPath == "" {
		return nil
	}
	return strings.Split(relPath, "/")
}

func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// listen serves on localhost until ctx is cancelled
func (s *server) listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// SSE streams end when ctx does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	}
}
