// Package httpapi exposes hosted regions over HTTP: block reads and writes,
// pending scheduled ticks and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/blocks"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/host"
	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/region"
)

// Host is the part of host.Host the handlers use.
type Host interface {
	Regions() []string
	Do(ctx context.Context, id string, fn func(*region.Region) error) error
}

type Server struct {
	host Host
	log  logrus.FieldLogger
}

type RegionSummary struct {
	ID           string              `json:"id"`
	Tick         int64               `json:"tick"`
	PendingTicks int                 `json:"pending_ticks"`
	TickFailures int                 `json:"tick_failures"`
	Chunks       int                 `json:"chunks"`
	Drains       neighbor.DrainStats `json:"drains"`
}

type Block struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
	Meta  uint8  `json:"meta"`
}

type PutBlockRequest struct {
	Block string `json:"block"`
	Meta  uint8  `json:"meta"`
	// Silent writes the cell without neighbor or shape reactions.
	Silent bool `json:"silent,omitempty"`
}

type PendingTick struct {
	Type        string `json:"type"`
	Pos         [3]int `json:"pos"`
	TriggerTick int64  `json:"trigger_tick"`
	Priority    string `json:"priority"`
}

// NewHandler routes the API. gatherer may be nil to omit /metrics.
func NewHandler(h Host, gatherer prometheus.Gatherer, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{host: h, log: log}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/regions", s.listRegions)
	r.Route("/regions/{id}", func(r chi.Router) {
		r.Get("/", s.getRegion)
		r.Get("/ticks", s.getTicks)
		r.Get("/blocks/{x}/{y}/{z}", s.getBlock)
		r.Put("/blocks/{x}/{y}/{z}", s.putBlock)
		r.Delete("/blocks/{x}/{y}/{z}/ticks", s.cancelTicks)
		r.Post("/blocks/{x}/{y}/{z}/toggle", s.toggle)
	})
	return r
}

func summarize(r *region.Region) RegionSummary {
	return RegionSummary{
		ID:           r.ID(),
		Tick:         r.Tick(),
		PendingTicks: r.PendingTicks(),
		TickFailures: r.TickFailures(),
		Chunks:       len(r.LoadedChunks()),
		Drains:       r.DrainStats(),
	}
}

func typeName(r *region.Region, t grid.BlockType) string {
	if name, ok := r.Catalog().Name(t); ok {
		return name
	}
	return "#" + strconv.Itoa(int(t))
}

func blockAt(r *region.Region, pos grid.Pos) Block {
	st := r.BlockState(pos)
	return Block{Pos: pos.Array(), Block: typeName(r, st.Type()), Meta: st.Meta()}
}

func (s *Server) listRegions(w http.ResponseWriter, req *http.Request) {
	out := []RegionSummary{}
	for _, id := range s.host.Regions() {
		err := s.host.Do(req.Context(), id, func(r *region.Region) error {
			out = append(out, summarize(r))
			return nil
		})
		if err != nil {
			s.fail(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getRegion(w http.ResponseWriter, req *http.Request) {
	var out RegionSummary
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		out = summarize(r)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTicks(w http.ResponseWriter, req *http.Request) {
	out := []PendingTick{}
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		for _, a := range r.ScheduledTicks() {
			out = append(out, PendingTick{
				Type:        typeName(r, a.Type),
				Pos:         a.Pos.Array(),
				TriggerTick: a.TriggerTick,
				Priority:    a.Priority.String(),
			})
		}
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBlock(w http.ResponseWriter, req *http.Request) {
	pos, ok := s.pos(w, req)
	if !ok {
		return
	}
	var out Block
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		if !r.InBounds(pos) {
			return errOutOfBounds
		}
		out = blockAt(r, pos)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) putBlock(w http.ResponseWriter, req *http.Request) {
	pos, ok := s.pos(w, req)
	if !ok {
		return
	}
	var body PutBlockRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var out Block
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		if !r.InBounds(pos) {
			return errOutOfBounds
		}
		t, ok := r.Catalog().Parse(body.Block)
		if !ok {
			return errUnknownBlock
		}
		flags := grid.DefaultFlags
		if body.Silent {
			flags |= grid.SuppressReaction
		}
		r.SetBlock(pos, grid.MakeState(t, body.Meta), flags)
		out = blockAt(r, pos)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) toggle(w http.ResponseWriter, req *http.Request) {
	pos, ok := s.pos(w, req)
	if !ok {
		return
	}
	var out Block
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		if !blocks.Toggle(r, pos) {
			return errNotSwitch
		}
		out = blockAt(r, pos)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) cancelTicks(w http.ResponseWriter, req *http.Request) {
	pos, ok := s.pos(w, req)
	if !ok {
		return
	}
	var n int
	err := s.host.Do(req.Context(), chi.URLParam(req, "id"), func(r *region.Region) error {
		n = r.CancelTicks(pos)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) pos(w http.ResponseWriter, req *http.Request) (grid.Pos, bool) {
	var xyz [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(chi.URLParam(req, name))
		if err != nil {
			http.Error(w, "invalid coordinate "+name, http.StatusBadRequest)
			return grid.Pos{}, false
		}
		xyz[i] = v
	}
	return grid.PosFromArray(xyz), true
}

var (
	errOutOfBounds  = errors.New("position out of bounds")
	errUnknownBlock = errors.New("unknown block type")
	errNotSwitch    = errors.New("not a switch")
)

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, host.ErrUnknownRegion):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errOutOfBounds), errors.Is(err, errUnknownBlock), errors.Is(err, errNotSwitch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, host.ErrStopped), errors.Is(err, context.Canceled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.log.WithError(err).Error("request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("encode response failed")
	}
}
