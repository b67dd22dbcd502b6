// Package server exposes the hunt to display collaborators: REST routes
// for status, stacks and movers, and a WebSocket that pushes sweep
// progress and new finds as they happen.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"asterhunt/internal/storage"
	"asterhunt/internal/tracker"
)

// Server wraps the HTTP status surface. The pipeline is optional: a
// server over an archive store answers run/mover queries only.
type Server struct {
	addr  string
	store *storage.Store
	pipe  *tracker.Pipeline
	hub   *hub
	log   *slog.Logger
	srv   *http.Server
}

// New builds a server. pipe may be nil for archive-only serving.
func New(addr string, store *storage.Store, pipe *tracker.Pipeline, log *slog.Logger) *Server {
	return &Server{
		addr:  addr,
		store: store,
		pipe:  pipe,
		hub:   newHub(log),
		log:   log,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/stacks", s.handleStacks).Methods("GET")
	r.HandleFunc("/api/movers", s.handleMovers).Methods("GET")
	r.HandleFunc("/api/movers/select", s.handleSelect).Methods("POST")
	r.HandleFunc("/api/pause", s.handlePause(true)).Methods("POST")
	r.HandleFunc("/api/resume", s.handlePause(false)).Methods("POST")
	r.HandleFunc("/api/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/api/runs/{id}/movers", s.handleRunMovers).Methods("GET")
	r.HandleFunc("/ws", s.hub.handleWS)
	return r
}

// Start runs the server until ctx is cancelled. When a live pipeline is
// attached its events are forwarded to WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	r := s.Router()
	go s.hub.run(ctx)
	if s.pipe != nil {
		events, unsub := s.pipe.Sched.Subscribe()
		defer unsub()
		go s.forward(ctx, events)
	}

	s.srv = &http.Server{Addr: s.addr, Handler: r}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", s.addr)
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) forward(ctx context.Context, events <-chan tracker.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.broadcast(eventPayload(ev))
		}
	}
}

func eventPayload(ev tracker.Event) any {
	type moverJSON struct {
		Locations [3][2]float32 `json:"locations"`
		Motion    float32       `json:"motion"`
		PADeg     float32       `json:"pa_deg"`
		ErrMid    float32       `json:"err_mid"`
		Score     float32       `json:"score"`
	}
	out := map[string]any{
		"type":     ev.Type,
		"phase":    ev.Phase,
		"motion":   ev.Motion,
		"pa_deg":   ev.PADeg,
		"progress": ev.Progress,
	}
	if ev.Mover != nil {
		var m moverJSON
		for i, ob := range ev.Mover.Objects {
			m.Locations[i] = [2]float32{ob.Location.X, ob.Location.Y}
		}
		m.Motion = ev.Mover.Motion
		m.PADeg = float32(float64(ev.Mover.PA) * 180 / math.Pi)
		m.ErrMid = ev.Mover.ErrMid
		m.Score = ev.Mover.Score
		out["mover"] = m
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		writeJSON(w, map[string]any{"live": false})
		return
	}
	writeJSON(w, s.pipe.Sched.CurrentStatus())
}

// stackInfo is the display contract for one stack: levels plus the dirty
// flag telling renderers whether to refetch pixels.
type stackInfo struct {
	Group      int     `json:"group"`
	Kind       string  `json:"kind"`
	Background float32 `json:"background"`
	Sigma      float32 `json:"sigma"`
	Threshold  float32 `json:"threshold"`
	Black      float32 `json:"black"`
	White      float32 `json:"white"`
	Dirty      bool    `json:"dirty"`
}

func (s *Server) handleStacks(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		http.Error(w, "no live run", http.StatusNotFound)
		return
	}
	var out []stackInfo
	for i, g := range s.pipe.Super.Groups {
		if g.Static != nil {
			out = append(out, info(i, "static", g.Static))
		}
		if g.Tracked != nil {
			out = append(out, info(i, "tracked", g.Tracked))
		}
	}
	if s.pipe.Super.Super != nil {
		out = append(out, info(-1, "super", s.pipe.Super.Super))
	}
	writeJSON(w, out)
}

func info(group int, kind string, st *tracker.StackedImage) stackInfo {
	return stackInfo{
		Group:      group,
		Kind:       kind,
		Background: st.Background,
		Sigma:      st.Sigma,
		Threshold:  st.Threshold,
		Black:      st.Black,
		White:      st.White,
		Dirty:      st.Dirty,
	}
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		http.Error(w, "no live run", http.StatusNotFound)
		return
	}
	writeJSON(w, s.pipe.Super.Movers())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if s.pipe == nil {
		http.Error(w, "no live run", http.StatusNotFound)
		return
	}
	next := r.URL.Query().Get("dir") != "prev"
	m := s.pipe.Super.SelectNextMover(next)
	if m == nil {
		http.Error(w, "no movers yet", http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handlePause(pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pipe == nil {
			http.Error(w, "no live run", http.StatusNotFound)
			return
		}
		s.pipe.Sched.SetPaused(pause)
		writeJSON(w, map[string]bool{"paused": pause})
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no store", http.StatusNotFound)
		return
	}
	runs, err := s.store.Runs(0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunMovers(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no store", http.StatusNotFound)
		return
	}
	movers, err := s.store.Movers(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, movers)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
