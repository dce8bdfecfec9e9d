package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/SarangaVP/Car-Damage-Caption/internal/export"
	"github.com/SarangaVP/Car-Damage-Caption/internal/images"
	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
	"github.com/SarangaVP/Car-Damage-Caption/internal/store"
)

// CaptionModel is the vision backend the server scores and captions with.
type CaptionModel interface {
	Caption(ctx context.Context, image []byte, mediaType string) (string, error)
	Evaluate(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error)
}

// Server provides the review API handlers.
type Server struct {
	store  store.Store
	images *images.Library
	model  CaptionModel // may be nil if no API key is configured
	ui     http.Handler // optional embedded web UI, served at /
}

// NewServer creates a new API server. The model may be nil; caption and
// evaluate operations then report that the LLM is not configured.
func NewServer(s store.Store, lib *images.Library, model CaptionModel) *Server {
	return &Server{
		store:  s,
		images: lib,
		model:  model,
	}
}

// WithUI attaches the embedded web UI handler, served for all non-API paths.
func (s *Server) WithUI(h http.Handler) *Server {
	s.ui = h
	return s
}

// Router returns an http.Handler for the review routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /review", s.getReview)
	mux.HandleFunc("POST /review", s.postReview)
	mux.HandleFunc("POST /upload_folder", s.uploadFolder)
	mux.HandleFunc("GET /download_json", s.downloadJSON)
	mux.HandleFunc("POST /clear_json", s.clearJSON)
	mux.HandleFunc("GET /images/{path...}", s.serveImage)

	if s.ui != nil {
		mux.Handle("/", s.ui)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Wire types ---

// ReviewItemResponse carries the next pending item to the client.
type ReviewItemResponse struct {
	ImagePath    string `json:"image_path"`
	GemmaCaption string `json:"gemma_caption"`
	Total        int    `json:"total"`
}

// DoneResponse signals that no review items remain.
type DoneResponse struct {
	Done    bool   `json:"done"`
	Message string `json:"message"`
}

// ReviewRequest is the body of POST /review, discriminated by Action.
type ReviewRequest struct {
	Action            string `json:"action"`
	ImagePath         string `json:"image_path"`
	GemmaCaption      string `json:"gemma_caption"`
	ManualCaption     string `json:"manual_caption"`
	GemmaScore        *int   `json:"gemma_score,omitempty"`
	ManualScore       *int   `json:"manual_score,omitempty"`
	GemmaExplanation  string `json:"gemma_explanation,omitempty"`
	ManualExplanation string `json:"manual_explanation,omitempty"`
}

// EvaluationResponse carries the scores for both captions of the current
// item. A nil score means that caption was empty or the model's reply could
// not be parsed; the explanation says which.
type EvaluationResponse struct {
	GemmaScore        *int   `json:"gemma_score"`
	GemmaExplanation  string `json:"gemma_explanation"`
	ManualScore       *int   `json:"manual_score"`
	ManualExplanation string `json:"manual_explanation"`
}

// MessageResponse is a plain status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Review queue ---

// nextItem captions the head of the pending queue. It returns (nil, nil)
// when the queue is empty.
func (s *Server) nextItem(ctx context.Context) (*ReviewItemResponse, error) {
	reviewed, err := s.store.ReviewedPaths(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.images.Pending(reviewed)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	head := pending[0]
	data, mediaType, err := s.images.Read(head)
	if err != nil {
		return nil, err
	}
	caption, err := s.model.Caption(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("generate caption for %s: %w", head, err)
	}

	return &ReviewItemResponse{
		ImagePath:    head,
		GemmaCaption: caption,
		Total:        len(pending),
	}, nil
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set anthropic.api_key)")
		return
	}

	item, err := s.nextItem(r.Context())
	if err != nil {
		slog.Error("fetch next review item", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, DoneResponse{Done: true, Message: "All images have been processed!"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) postReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Action {
	case "check":
		s.checkCaptions(w, r, req)
	case "save":
		s.saveCaptions(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid action: %q", req.Action))
	}
}

// checkCaptions evaluates both captions of the current item. Empty captions
// are never sent to the model; they score nil with a fixed explanation.
func (s *Server) checkCaptions(w http.ResponseWriter, r *http.Request, req ReviewRequest) {
	if s.model == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set anthropic.api_key)")
		return
	}
	if req.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "image_path is required")
		return
	}

	data, mediaType, err := s.images.Read(req.ImagePath)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := EvaluationResponse{
		GemmaExplanation:  "No generated caption provided",
		ManualExplanation: "No manual caption provided",
	}

	if req.GemmaCaption != "" {
		eval, err := s.model.Evaluate(r.Context(), data, mediaType, req.GemmaCaption)
		if err != nil {
			slog.Error("evaluate generated caption", "image", req.ImagePath, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		resp.GemmaScore = eval.Score
		resp.GemmaExplanation = eval.Explanation
	}
	if req.ManualCaption != "" {
		eval, err := s.model.Evaluate(r.Context(), data, mediaType, req.ManualCaption)
		if err != nil {
			slog.Error("evaluate manual caption", "image", req.ImagePath, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		resp.ManualScore = eval.Score
		resp.ManualExplanation = eval.Explanation
	}

	writeJSON(w, http.StatusOK, resp)
}

// saveCaptions persists the review and returns either the next item or the
// terminal done message.
func (s *Server) saveCaptions(w http.ResponseWriter, r *http.Request, req ReviewRequest) {
	// Advancing after a save needs the model for the next caption, so a
	// model-less server rejects the save before touching the store rather
	// than persisting and then failing.
	if s.model == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set anthropic.api_key)")
		return
	}
	if req.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "image_path is required")
		return
	}
	if req.GemmaCaption == "" {
		writeError(w, http.StatusBadRequest, "gemma_caption is required")
		return
	}
	for _, score := range []*int{req.GemmaScore, req.ManualScore} {
		if score != nil && !models.ValidScore(*score) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("score out of range: %d", *score))
			return
		}
	}

	// Reject paths that do not resolve to a file in the library.
	abs, err := s.images.Path(req.ImagePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := os.Stat(abs); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("image not found: %s", req.ImagePath))
		return
	}

	c := &models.Caption{
		ImagePath:            req.ImagePath,
		GeneratedCaption:     req.GemmaCaption,
		ManualCaption:        req.ManualCaption,
		GeneratedScore:       req.GemmaScore,
		GeneratedExplanation: req.GemmaExplanation,
		ManualScore:          req.ManualScore,
		ManualExplanation:    req.ManualExplanation,
	}
	if err := s.store.SaveCaption(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	item, err := s.nextItem(r.Context())
	if err != nil {
		slog.Error("fetch item after save", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, DoneResponse{Done: true, Message: "All images processed!"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// --- Uploads ---

func (s *Server) uploadFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files in upload")
		return
	}

	saved := 0
	for _, fh := range files {
		// The filename carries the path relative to the uploaded folder.
		if !images.IsImage(fh.Filename) {
			slog.Debug("skipping non-image upload", "name", fh.Filename)
			continue
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("open upload %s: %v", fh.Filename, err))
			return
		}
		err = s.images.SaveUpload(fh.Filename, f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		saved++
	}

	slog.Info("folder uploaded", "files", len(files), "saved", saved)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Folder uploaded successfully"})
}

// --- Dataset export ---

func (s *Server) downloadJSON(w http.ResponseWriter, r *http.Request) {
	captions, err := s.store.ListCaptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName))
	if err := export.Archive(w, captions); err != nil {
		// Headers are already out; all we can do is log.
		slog.Error("write dataset archive", "error", err)
	}
}

func (s *Server) clearJSON(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ClearCaptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("dataset cleared", "captions", n)
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Cleared %d saved captions", n)})
}

// --- Images ---

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	abs, err := s.images.Path(rel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := os.Stat(abs); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
