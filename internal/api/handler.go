package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/prowler/internal/history"
	"github.com/kalambet/prowler/internal/lookup"
	"github.com/kalambet/prowler/internal/postcode"
)

const maxRequestBodySize = 1 << 16 // 64KB

// Orchestrator is the subset of lookup.Orchestrator the presenters use.
type Orchestrator interface {
	State() lookup.State
	Search(ctx context.Context, pc string) (lookup.State, error)
	SelectHistoryEntry(entry history.Entry) lookup.State
	Subscribe(fn func(lookup.State)) (unsubscribe func())
}

// Deps holds what the view server needs.
type Deps struct {
	Orchestrator Orchestrator
	Metrics      http.Handler // optional; /metrics is not mounted when nil
}

// NewHandler returns the loopback view API: state snapshots, searches,
// history selection, boundary GeoJSON and a server-sent event stream of
// state changes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/state", handleState(deps.Orchestrator))
	r.Get("/events", handleEvents(deps.Orchestrator))
	r.Post("/search", handleSearch(deps.Orchestrator))
	r.Get("/history", handleHistory(deps.Orchestrator))
	r.Post("/history/{postcode}/select", handleSelect(deps.Orchestrator))
	r.Get("/boundary", handleBoundary(deps.Orchestrator))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleState(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, o.State())
	}
}

type searchRequest struct {
	Postcode string `json:"postcode"`
}

func handleSearch(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		pc := postcode.Normalize(req.Postcode)
		if !postcode.Valid(pc) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid postcode %q", req.Postcode)
			return
		}

		st, err := o.Search(r.Context(), pc)
		if errors.Is(err, lookup.ErrSuperseded) {
			httpError(w, http.StatusConflict, "conflict_error", "search for %s was superseded by a newer search", pc)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleHistory(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := history.Suggest(r.URL.Query().Get("prefix"), o.State().History)
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleSelect(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pc := chi.URLParam(r, "postcode")
		entry, ok := history.Find(pc, o.State().History)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "no history entry for %q", pc)
			return
		}
		writeJSON(w, http.StatusOK, o.SelectHistoryEntry(entry))
	}
}

func handleBoundary(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := o.State()
		if st.Result == nil || st.Result.APIData == nil || st.Result.APIData.DistrictBoundary == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "no boundary for the current result")
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(st.Result.APIData.DistrictBoundary)
	}
}

// handleEvents streams every state change as a server-sent event, starting
// with the current state.
func handleEvents(o Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updates := make(chan lookup.State, 8)
		unsubscribe := o.Subscribe(func(s lookup.State) {
			select {
			case updates <- s:
			default:
				// Slow reader; it will catch up on the next change.
			}
		})
		defer unsubscribe()

		send := func(s lookup.State) bool {
			b, err := json.Marshal(s)
			if err != nil {
				slog.Error("marshalling state event", "error", err)
				return false
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", b); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		if !send(o.State()) {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case s := <-updates:
				if !send(s) {
					return
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
