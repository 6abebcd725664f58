package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"embatch/internal/cache"
	"embatch/internal/config"
	"embatch/internal/embedding"
)

// Submitter is the batching capability the handler depends on. It blocks
// until the caller's slice of the flight result is available.
type Submitter interface {
	Submit(ctx context.Context, inputs []string) ([][]float32, *embedding.BatchInfo, error)
}

// Handler handles the ingress HTTP surface
type Handler struct {
	coordinator Submitter
	cache       cache.Cache
	cfg         *config.Config
	logger      zerolog.Logger
}

// NewHandler builds the ingress router
func NewHandler(coordinator Submitter, embCache cache.Cache, cfg *config.Config, logger zerolog.Logger) http.Handler {
	h := &Handler{
		coordinator: coordinator,
		cache:       embCache,
		cfg:         cfg,
		logger:      logger.With().Str("component", "proxy").Logger(),
	}

	r := chi.NewRouter()
	r.Get("/health", h.handleHealth)
	r.Post("/embed", h.handleEmbed)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (h *Handler) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	}
	defer r.Body.Close()

	var req embedding.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Fail fast before batching: cheaper to check here and gives the caller
	// immediate feedback.
	if len(req.Inputs) == 0 {
		h.writeError(w, http.StatusBadRequest, "`inputs` can't be empty")
		return
	}
	if len(req.Inputs) > h.cfg.MaxTotalInputs {
		h.logger.Warn().
			Int("inputs", len(req.Inputs)).
			Int("limit", h.cfg.MaxTotalInputs).
			Msg("rejecting oversize request")
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("`inputs` can't be greater than %d", h.cfg.MaxTotalInputs))
		return
	}

	// Serve what the cache already knows; only misses ride a batch.
	embeddings := make([][]float32, len(req.Inputs))
	missIndices := make([]int, 0, len(req.Inputs))
	missInputs := make([]string, 0, len(req.Inputs))
	for i, input := range req.Inputs {
		if vec, ok := h.cache.Get(input); ok {
			embeddings[i] = vec
			continue
		}
		missIndices = append(missIndices, i)
		missInputs = append(missInputs, input)
	}

	var info *embedding.BatchInfo
	if len(missInputs) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.GetRequestTimeoutDuration())
		defer cancel()

		fresh, batchInfo, err := h.coordinator.Submit(ctx, missInputs)
		if err != nil {
			h.writeSubmitError(w, err)
			return
		}

		info = batchInfo
		for j, idx := range missIndices {
			embeddings[idx] = fresh[j]
			h.cache.Set(req.Inputs[idx], fresh[j])
		}
	}

	h.writeEmbeddings(w, embeddings, info)
}

// writeSubmitError maps coordinator errors to HTTP statuses
func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var upErr *embedding.UpstreamError
	var shapeErr *embedding.ShapeError

	switch {
	case errors.Is(err, embedding.ErrOversize):
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, embedding.ErrEmptyInputs):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrShutdown):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusRequestTimeout, "request timed out")
	case errors.As(err, &upErr), errors.As(err, &shapeErr):
		h.logger.Error().Err(err).Msg("upstream failure")
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeEmbeddings writes the success response. The default shape mirrors
// the inference service (a bare array of vectors); with batch info enabled
// the response is wrapped in an object carrying the flight metadata.
func (h *Handler) writeEmbeddings(w http.ResponseWriter, embeddings [][]float32, info *embedding.BatchInfo) {
	w.Header().Set("Content-Type", "application/json")

	var payload any = embeddings
	if h.cfg.IncludeBatchInfo {
		payload = embedding.EmbedResponse{Embeddings: embeddings, BatchInfo: info}
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(embedding.ErrorResponse{Error: message})
}
