package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SarangaVP/Car-Damage-Caption/internal/api"
	"github.com/SarangaVP/Car-Damage-Caption/internal/images"
	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
	"github.com/SarangaVP/Car-Damage-Caption/internal/store"
)

// Server wraps the caption data layer and exposes it as MCP tools.
type Server struct {
	store  store.Store
	images *images.Library
	model  api.CaptionModel
}

// NewServer creates the MCP server wrapper. The model may be nil; caption
// and evaluate tools then report that the LLM is not configured.
func NewServer(s store.Store, lib *images.Library, model api.CaptionModel) *Server {
	return &Server{
		store:  s,
		images: lib,
		model:  model,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("caprev", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.nextImageTool())
	srv.AddTool(s.evaluateCaptionTool())
	srv.AddTool(s.saveReviewTool())
	srv.AddTool(s.datasetStatsTool())
	srv.AddTool(s.clearDatasetTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// caprev_next_image
func (s *Server) nextImageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("caprev_next_image",
		mcp.WithDescription("Fetch the next unreviewed image and generate a caption for it. Returns JSON with image_path, generated_caption, and the number of images remaining, or a done message when the queue is empty."),
	)
	return tool, s.handleNextImage
}

func (s *Server) handleNextImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.model == nil {
		return mcp.NewToolResultError("LLM not configured (set anthropic.api_key)"), nil
	}

	reviewed, err := s.store.ReviewedPaths(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load reviewed paths: %v", err)), nil
	}
	pending, err := s.images.Pending(reviewed)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to scan images: %v", err)), nil
	}
	if len(pending) == 0 {
		return mcp.NewToolResultText(`{"done": true, "message": "All images have been processed!"}`), nil
	}

	head := pending[0]
	data, mediaType, err := s.images.Read(head)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read image %s: %v", head, err)), nil
	}
	caption, err := s.model.Caption(ctx, data, mediaType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate caption: %v", err)), nil
	}

	out := map[string]any{
		"image_path":        head,
		"generated_caption": caption,
		"remaining":         len(pending),
	}
	return jsonResult(out)
}

// caprev_evaluate_caption
func (s *Server) evaluateCaptionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("caprev_evaluate_caption",
		mcp.WithDescription("Score a caption against its image on a 1-5 scale. Returns JSON with score (null if the reply could not be parsed) and explanation."),
		mcp.WithString("image_path", mcp.Required(), mcp.Description("Image path relative to the data folder")),
		mcp.WithString("caption", mcp.Required(), mcp.Description("Caption text to evaluate")),
	)
	return tool, s.handleEvaluateCaption
}

func (s *Server) handleEvaluateCaption(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.model == nil {
		return mcp.NewToolResultError("LLM not configured (set anthropic.api_key)"), nil
	}

	imagePath, err := request.RequireString("image_path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: image_path"), nil
	}
	caption, err := request.RequireString("caption")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: caption"), nil
	}

	data, mediaType, err := s.images.Read(imagePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read image %s: %v", imagePath, err)), nil
	}
	eval, err := s.model.Evaluate(ctx, data, mediaType, caption)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to evaluate caption: %v", err)), nil
	}

	out := map[string]any{
		"score":       eval.Score,
		"explanation": eval.Explanation,
	}
	return jsonResult(out)
}

// caprev_save_review
func (s *Server) saveReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("caprev_save_review",
		mcp.WithDescription("Save a completed review for an image. The generated caption is required; the manual caption and 1-5 scores are optional."),
		mcp.WithString("image_path", mcp.Required(), mcp.Description("Image path relative to the data folder")),
		mcp.WithString("generated_caption", mcp.Required(), mcp.Description("Model-generated caption")),
		mcp.WithString("manual_caption", mcp.Description("Reviewer-written caption")),
		mcp.WithNumber("generated_score", mcp.Description("1-5 score for the generated caption")),
		mcp.WithNumber("manual_score", mcp.Description("1-5 score for the manual caption")),
		mcp.WithString("generated_explanation", mcp.Description("Explanation for the generated caption score")),
		mcp.WithString("manual_explanation", mcp.Description("Explanation for the manual caption score")),
	)
	return tool, s.handleSaveReview
}

func (s *Server) handleSaveReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imagePath, err := request.RequireString("image_path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: image_path"), nil
	}
	generated, err := request.RequireString("generated_caption")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: generated_caption"), nil
	}

	if _, _, err := s.images.Read(imagePath); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("image not found: %s", imagePath)), nil
	}

	c := &models.Caption{
		ImagePath:            imagePath,
		GeneratedCaption:     generated,
		ManualCaption:        request.GetString("manual_caption", ""),
		GeneratedExplanation: request.GetString("generated_explanation", ""),
		ManualExplanation:    request.GetString("manual_explanation", ""),
	}
	if score := request.GetInt("generated_score", 0); score != 0 {
		if !models.ValidScore(score) {
			return mcp.NewToolResultError(fmt.Sprintf("generated_score out of range: %d", score)), nil
		}
		c.GeneratedScore = &score
	}
	if score := request.GetInt("manual_score", 0); score != 0 {
		if !models.ValidScore(score) {
			return mcp.NewToolResultError(fmt.Sprintf("manual_score out of range: %d", score)), nil
		}
		c.ManualScore = &score
	}

	if err := s.store.SaveCaption(ctx, c); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save review: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved review for %s", imagePath)), nil
}

// caprev_dataset_stats
func (s *Server) datasetStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("caprev_dataset_stats",
		mcp.WithDescription("Summarize the dataset: total images, pending reviews, saved reviews, and how many have manual captions."),
	)
	return tool, s.handleDatasetStats
}

func (s *Server) handleDatasetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewed, err := s.store.ReviewedPaths(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load reviewed paths: %v", err)), nil
	}
	pending, err := s.images.Pending(reviewed)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to scan images: %v", err)), nil
	}
	captions, err := s.store.ListCaptions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list captions: %v", err)), nil
	}

	manual := 0
	for _, c := range captions {
		if c.HasManual() {
			manual++
		}
	}

	out := map[string]any{
		"total_images":    len(pending) + len(reviewed),
		"pending":         len(pending),
		"reviewed":        len(captions),
		"manual_captions": manual,
	}
	return jsonResult(out)
}

// caprev_clear_dataset
func (s *Server) clearDatasetTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("caprev_clear_dataset",
		mcp.WithDescription("Delete every saved review, making all images pending again. This cannot be undone."),
	)
	return tool, s.handleClearDataset
}

func (s *Server) handleClearDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.store.ClearCaptions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear dataset: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %d saved captions", n)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
