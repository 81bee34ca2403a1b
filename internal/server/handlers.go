package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/invalidation"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/storage"
	"github.com/hyperjump/kotoba/pkg/utils"
)

const maxLoggedQuery = 200

type rewriteRequest struct {
	Container   string             `json:"container"`
	Query       string             `json:"query"`
	CachePolicy models.CachePolicy `json:"cache_policy,omitempty"`
}

// indexParam returns the {index} path parameter, or writes 404 and returns
// false when it names no configured index or alias.
func (s *Server) indexParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	index := chi.URLParam(r, "index")
	if _, ok := s.cfg.Indices[s.cfg.ResolveIndex(index)]; !ok {
		s.respondError(w, http.StatusNotFound, "index not found: "+index)
		return "", false
	}
	return index, true
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var body rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Container == "" {
		body.Container = config.DefaultContainer
	}
	rc, ok := s.cfg.Container(body.Container)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unknown container: "+body.Container)
		return
	}
	switch body.CachePolicy {
	case "", models.CacheReadWrite, models.CacheReadOnly, models.CacheBypass:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown cache_policy: "+string(body.CachePolicy))
		return
	}

	req := models.RewriteRequest{
		IndexAlias:  index,
		Container:   body.Container,
		Query:       body.Query,
		Config:      rc,
		CachePolicy: body.CachePolicy,
	}
	s.logger.Debug("rewrite request", zap.String("index", index), zap.String("container", body.Container), zap.String("query", utils.Truncate(body.Query, maxLoggedQuery)))
	rewrites, err := s.rewriter.Rewrite(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("rewrite failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.RewriteResponse{Query: body.Query, Rewrites: rewrites})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var req models.SpellingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Index = index
	if req.CutoffFrequency == 0 {
		req.CutoffFrequency = s.cfg.Spelling.CutoffFrequency
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("classify request", zap.String("index", index), zap.String("query", utils.Truncate(req.Query, maxLoggedQuery)))
	verdict := s.classifier.Classify(r.Context(), req)
	s.respondJSON(w, http.StatusOK, models.SpellingResponse{Query: req.Query, Verdict: verdict})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index document request", zap.String("index", index), zap.String("id", input.ID))
	id, err := indexer.New(s.sink, index, nil, indexer.WithMetrics(s.metrics)).IndexDocument(r.Context(), &input)
	if err != nil {
		if errors.Is(err, indexer.ErrEmptyDocument) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "indexed"})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("index", index), zap.String("id", id))
	if err := indexer.New(s.sink, index, nil).DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	container := r.URL.Query().Get("container")
	if s.invalidator == nil {
		s.respondError(w, http.StatusNotImplemented, "cache not enabled")
		return
	}
	res, err := s.invalidator.Invalidate(r.Context(), index, container, "api")
	if err != nil {
		if errors.Is(err, invalidation.ErrNoTarget) {
			s.respondError(w, http.StatusBadRequest, "index or container is required")
			return
		}
		s.logger.Error("invalidation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("cache invalidated", zap.String("index", index), zap.String("container", container),
		zap.Int("removed", res.Removed), zap.Bool("published", res.Published))
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	indices := make([]string, 0, len(s.cfg.Indices))
	for name := range s.cfg.Indices {
		indices = append(indices, name)
	}
	sort.Strings(indices)
	resp := map[string]interface{}{"status": "ok", "indices": indices}
	if n, err := storage.DiskUsageBytes(storage.Paths(s.cfg.Storage)...); err == nil {
		resp["disk_usage_bytes"] = n
	} else {
		s.logger.Debug("disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
