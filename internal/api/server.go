// Package api exposes the generation engine over HTTP.
//
// Generation runs stream their progress as NDJSON: one JSON line per
// session event, followed by one line per generated item. The caller owns
// rendering; the server never buffers a whole collection in a single
// response object.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/layerforge/layerforge/pkg/cache"
	"github.com/layerforge/layerforge/pkg/compose"
	"github.com/layerforge/layerforge/pkg/errors"
	"github.com/layerforge/layerforge/pkg/generate"
	"github.com/layerforge/layerforge/pkg/model"
)

// Server serves generation sessions for one loaded project.
type Server struct {
	model  *model.ConstraintModel
	cache  cache.Cache
	logger *log.Logger
}

// New creates a server. A nil cache disables buffer reuse.
func New(m *model.ConstraintModel, c cache.Cache, logger *log.Logger) *Server {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{model: m, cache: c, logger: logger}
}

// Routes configures the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/capacity", s.handleCapacity)
		r.Post("/generate", s.handleGenerate)
		r.Post("/preview", s.handlePreview)
	})

	return r
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleCapacity reports the uniqueness headroom of every active
// combination, the same numbers the pre-check enforces.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generate.CapacityReports(s.model))
}

// generateRequest is the POST /generate body.
type generateRequest struct {
	Size          int    `json:"size"`
	Seed          uint64 `json:"seed,omitempty"`
	OutputWidth   int    `json:"output_width,omitempty"`
	OutputHeight  int    `json:"output_height,omitempty"`
	MetadataOnly  bool   `json:"metadata_only,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

// itemLine is one generated item on the NDJSON stream.
type itemLine struct {
	Type     string           `json:"type"`
	Index    int              `json:"index"`
	Metadata model.Metadata   `json:"metadata"`
	Traits   model.Assignment `json:"traits"`
	Image    string           `json:"image,omitempty"` // base64 data URL
}

// handleGenerate runs a session and streams events and items as NDJSON.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode request"))
		return
	}

	sess, err := generate.NewSession(s.model, generate.Options{
		Size:         req.Size,
		Seed:         req.Seed,
		OutputWidth:  req.OutputWidth,
		OutputHeight: req.OutputHeight,
		SkipCompose:  req.MetadataOnly,
		Cache:        s.cache,
		Logger:       s.logger,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	type outcome struct {
		items []generate.Item
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		items, err := sess.Run(r.Context())
		done <- outcome{items, err}
	}()

	// the event channel closes when Run returns
	for ev := range sess.Events() {
		_ = enc.Encode(ev)
		if flusher != nil {
			flusher.Flush()
		}
	}

	out := <-done
	for _, it := range out.items {
		line := itemLine{Type: "item", Index: it.Index, Metadata: it.Metadata, Traits: it.Assignment}
		if req.IncludeImages && len(it.Image) > 0 {
			line.Image = compose.DataURL(it.Image)
		}
		_ = enc.Encode(line)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// previewRequest is the POST /preview body.
type previewRequest struct {
	BaseTrait    string `json:"base_trait"`
	OverlayTrait string `json:"overlay_trait"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// handlePreview composites two traits at a reduced size and returns the
// result as a data URL.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode request"))
		return
	}

	base := s.model.Trait(model.TraitID(req.BaseTrait))
	overlay := s.model.Trait(model.TraitID(req.OverlayTrait))
	if base == nil || overlay == nil {
		writeError(w, http.StatusNotFound, errors.New(errors.ErrCodeNotFound, "unknown trait"))
		return
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = 200
	}
	if height <= 0 {
		height = 200
	}

	engine := compose.NewEngine(s.cache, nil)
	data, err := engine.Preview(r.Context(), base.Image, overlay.Image, width, height)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(errors.ErrCodeInternal, err, "preview"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"data_url": compose.DataURL(data)})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"code":  string(errors.GetCode(err)),
		"error": errors.UserMessage(err),
	})
}
