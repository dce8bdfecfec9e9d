// Package client is the HTTP dispatcher the terminal review session uses to
// talk to a running caprev server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/SarangaVP/Car-Damage-Caption/internal/session"
)

// Client implements session.Dispatcher over the review HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Caption and evaluation calls wait on the LLM, so the timeout is
		// generous.
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// reviewPayload is the combined shape of GET/POST /review responses: either
// the done message or the next item.
type reviewPayload struct {
	Done         bool   `json:"done"`
	Message      string `json:"message"`
	ImagePath    string `json:"image_path"`
	GemmaCaption string `json:"gemma_caption"`
	Total        int    `json:"total"`
}

func (p reviewPayload) result() session.Result {
	if p.Done {
		return session.Result{Done: true, Message: p.Message}
	}
	return session.Result{Item: &session.Item{
		ImagePath:        p.ImagePath,
		GeneratedCaption: p.GemmaCaption,
		Total:            p.Total,
	}}
}

type reviewRequest struct {
	Action            string `json:"action"`
	ImagePath         string `json:"image_path"`
	GemmaCaption      string `json:"gemma_caption"`
	ManualCaption     string `json:"manual_caption"`
	GemmaScore        *int   `json:"gemma_score,omitempty"`
	ManualScore       *int   `json:"manual_score,omitempty"`
	GemmaExplanation  string `json:"gemma_explanation,omitempty"`
	ManualExplanation string `json:"manual_explanation,omitempty"`
}

type evaluationPayload struct {
	GemmaScore        *int   `json:"gemma_score"`
	GemmaExplanation  string `json:"gemma_explanation"`
	ManualScore       *int   `json:"manual_score"`
	ManualExplanation string `json:"manual_explanation"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// apiError extracts the server's error message from a non-2xx response.
func apiError(resp *http.Response) error {
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s", body.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Fetch retrieves the next pending item.
func (c *Client) Fetch(ctx context.Context) (session.Result, error) {
	var payload reviewPayload
	if err := c.doJSON(ctx, "GET", "/review", nil, &payload); err != nil {
		return session.Result{}, err
	}
	return payload.result(), nil
}

// Check asks the server to score both captions.
func (c *Client) Check(ctx context.Context, review session.Review) (session.Scores, error) {
	req := reviewRequest{
		Action:        "check",
		ImagePath:     review.ImagePath,
		GemmaCaption:  review.GeneratedCaption,
		ManualCaption: review.ManualCaption,
	}
	var payload evaluationPayload
	if err := c.doJSON(ctx, "POST", "/review", req, &payload); err != nil {
		return session.Scores{}, err
	}
	var scores session.Scores
	scores.Generated.Score = payload.GemmaScore
	scores.Generated.Explanation = payload.GemmaExplanation
	scores.Manual.Score = payload.ManualScore
	scores.Manual.Explanation = payload.ManualExplanation
	return scores, nil
}

// Save submits the review and returns the next item or the done message.
func (c *Client) Save(ctx context.Context, review session.Review) (session.Result, error) {
	req := reviewRequest{
		Action:        "save",
		ImagePath:     review.ImagePath,
		GemmaCaption:  review.GeneratedCaption,
		ManualCaption: review.ManualCaption,
	}
	if review.Scores != nil {
		req.GemmaScore = review.Scores.Generated.Score
		req.GemmaExplanation = review.Scores.Generated.Explanation
		req.ManualScore = review.Scores.Manual.Score
		req.ManualExplanation = review.Scores.Manual.Explanation
	}
	var payload reviewPayload
	if err := c.doJSON(ctx, "POST", "/review", req, &payload); err != nil {
		return session.Result{}, err
	}
	return payload.result(), nil
}

// Upload sends a folder of files as one multipart request.
func (c *Client) Upload(ctx context.Context, files []session.UploadFile) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.Path)
		if err != nil {
			return fmt.Errorf("build upload: %w", err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload_folder", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload folder: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	resp.Body.Close()
	return nil
}

// Export streams the dataset ZIP archive to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/download_json", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download dataset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("write dataset archive: %w", err)
	}
	return nil
}

// Clear wipes the saved dataset and returns the server's status message.
func (c *Client) Clear(ctx context.Context) (string, error) {
	var payload messagePayload
	if err := c.doJSON(ctx, "POST", "/clear_json", nil, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

var _ session.Dispatcher = (*Client)(nil)
