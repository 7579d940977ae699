package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultMappingLimit = 100
	maxMappingLimit     = 1000
)

// listMappings handles GET /v1/mappings?limit=&offset=. It returns
// {"mappings": [...], "total": n}.
func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultMappingLimit, maxMappingLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all, err := s.svc.Mappings(r.Context())
	if err != nil {
		s.logger.Error("list mappings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list mappings")
		return
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings": all[offset:end],
		"total":    total,
	})
}

// getMapping handles GET /v1/mappings/{job_id}.
func (s *Server) getMapping(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	m, err := s.svc.Mapping(r.Context(), jobID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("get mapping failed", zap.String("job_id", jobID), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if v > maxLimit {
			v = maxLimit
		}
		limit = v
	}
	offset := 0
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = v
	}
	return limit, offset, nil
}
