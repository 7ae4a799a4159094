package terminal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/antibyte/simplimath/pkg/auth"
	"github.com/antibyte/simplimath/pkg/logger"
	"github.com/antibyte/simplimath/pkg/store"
)

// SaveProgramRequest is the body of POST /api/programs.
type SaveProgramRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// apiError is the JSON error body of the program API.
type apiError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandlePrograms serves /api/programs for the authenticated owner:
// GET lists (or loads ?name=), POST saves, DELETE ?name= removes.
func (h *Handler) HandlePrograms(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	owner := claims.Owner()
	name := r.URL.Query().Get("name")

	switch r.Method {
	case http.MethodGet:
		if name != "" {
			p, err := h.store.LoadProgram(owner, name)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
		programs, err := h.store.ListPrograms(owner)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if programs == nil {
			programs = []store.Program{}
		}
		writeJSON(w, http.StatusOK, programs)

	case http.MethodPost:
		var req SaveProgramRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxProgramLen+1024)).Decode(&req); err != nil {
			writeError(w, "Invalid request format", http.StatusBadRequest)
			return
		}
		p, err := h.store.SaveProgram(owner, req.Name, req.Source)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		logger.TerminalInfo("Program %s saved for %s", p.Name, owner)
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := h.store.DeleteProgram(owner, name); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRuns serves GET /api/runs?limit=n, newest first.
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(claims.Owner(), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProgramNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidName):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.StorageError("Program API: %v", err)
		writeError(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, apiError{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
