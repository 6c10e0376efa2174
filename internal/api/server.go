// Package api provides the HTTP server for the exhibition.
//
// It serves the external 3D viewer's directory at the root (replacing the
// throwaway python http.server the installation used to run) and adds a
// small operator surface on top.
//
// Routes:
//
//	GET  /                 → viewer files (index.html, models/, …)
//	GET  /dashboard        → embedded operator dashboard
//	GET  /static/*         → dashboard assets
//	GET  /health           → health check
//	GET  /api/status       → config summary, uptime, disk free
//	GET  /api/metrics      → JSON metrics snapshot (or SSE stream)
//	GET  /api/prompts      → loaded prompt rows
//	POST /api/generate     → trigger one generation cycle now
//	GET  /events           → SSE: "reload" after each successful publish
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/config"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/exhibit"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/metrics"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/prompts"
	"github.com/mariopenglee/nooneisthere-exhibition-script/internal/sysinfo"
)

// Server is the exhibition HTTP server.
type Server struct {
	cfg     config.Config
	source  *prompts.Source
	loop    *exhibit.Loop
	metrics *metrics.Collector
	log     *zap.Logger
	mux     *http.ServeMux
	started time.Time

	mu   sync.Mutex
	subs map[chan struct{}]struct{} // reload event subscribers
}

// NewServer creates a Server with all routes registered and hooks itself
// into the loop's publish notifications.
func NewServer(cfg config.Config, source *prompts.Source, loop *exhibit.Loop, mc *metrics.Collector, log *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		source:  source,
		loop:    loop,
		metrics: mc,
		log:     log,
		mux:     http.NewServeMux(),
		started: time.Now(),
		subs:    make(map[chan struct{}]struct{}),
	}
	s.registerRoutes()
	loop.OnPublish(s.notifyReload)
	return s
}

// Run starts the HTTP server on addr and shuts it down gracefully when ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.mux,
		// ReadHeaderTimeout prevents slow-loris: clients that send headers
		// very slowly would otherwise hold a goroutine open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		// IdleTimeout closes keep-alive connections that sit idle too long.
		IdleTimeout: 120 * time.Second,
		// Note: ReadTimeout / WriteTimeout intentionally omitted — the SSE
		// streams (/events, /api/metrics) stay open for the whole run.
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	// Viewer files at the root. The viewer directory is external; serve it
	// as-is off disk so the viewer's own assets need no registration here.
	s.mux.Handle("/", http.FileServer(http.FS(os.DirFS(s.cfg.ViewerDir))))

	// Operator dashboard (embedded).
	s.mux.HandleFunc("/dashboard", s.handleDashboard)
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles))))

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/metrics", s.handleMetrics)
	s.mux.HandleFunc("/api/prompts", s.handlePrompts)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/events", s.handleEvents)
}

// ─────────────────────────────────────────────────────────────────────────
// Dashboard
// ─────────────────────────────────────────────────────────────────────────

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := staticFiles.Open("index.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, f)
}

// ─────────────────────────────────────────────────────────────────────────
// Health & status
// ─────────────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pointeOK := dirExists(s.cfg.PointEDir)
	viewerOK := dirExists(s.cfg.ViewerModelsDir)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"pointe_ok": pointeOK,
		"viewer_ok": viewerOK,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pointe_dir":        s.cfg.PointEDir,
		"viewer_dir":        s.cfg.ViewerDir,
		"viewer_models_dir": s.cfg.ViewerModelsDir,
		"env_type":          s.cfg.EnvType,
		"interval_seconds":  s.cfg.IntervalSeconds,
		"prompt_order":      s.cfg.PromptOrder,
		"prompt_count":      s.source.Len(),
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
		"disk_free_gb":      sysinfo.FreeDiskGB(s.cfg.ViewerModelsDir),
	})
}

// ─────────────────────────────────────────────────────────────────────────
// Metrics
// ─────────────────────────────────────────────────────────────────────────

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "text/event-stream" {
		s.streamMetrics(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.metrics.Snapshot())
}

func (s *Server) streamMetrics(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			data, _ := json.Marshal(s.metrics.Snapshot())
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────
// Prompts & manual generation
// ─────────────────────────────────────────────────────────────────────────

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rows := s.source.Rows()
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]string{
			"description": row.Description,
			"material":    row.Material,
			"object":      row.Object,
			"prompt":      row.Prompt(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// handleGenerate triggers one out-of-band generation cycle. The loop is
// single-flight, so a trigger racing the timer (or another trigger) gets 409.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.loop.Trigger(context.Background()); err != nil {
		http.Error(w, "a generation cycle is already running", http.StatusConflict)
		return
	}
	s.log.Info("manual generation triggered")
	// The cycle can take minutes; report acceptance, not completion.
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// ─────────────────────────────────────────────────────────────────────────
// Reload events
// ─────────────────────────────────────────────────────────────────────────

// handleEvents streams one SSE "reload" event per successful publish. The
// viewer page listens and refreshes the model without reloading itself.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	// Heartbeat keeps proxies from closing an otherwise silent stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			fmt.Fprint(w, "event: reload\ndata: {}\n\n")
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// notifyReload fans a publish event out to all subscribers. Non-blocking:
// a subscriber that hasn't drained its channel keeps its one pending event.
func (s *Server) notifyReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
