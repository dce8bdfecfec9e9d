package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SarangaVP/Car-Damage-Caption/internal/images"
	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
	"github.com/SarangaVP/Car-Damage-Caption/internal/store"
)

// fakeModel is a CaptionModel double with overridable behavior.
type fakeModel struct {
	captionFn  func(ctx context.Context, image []byte, mediaType string) (string, error)
	evaluateFn func(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error)
}

func (f *fakeModel) Caption(ctx context.Context, image []byte, mediaType string) (string, error) {
	if f.captionFn != nil {
		return f.captionFn(ctx, image, mediaType)
	}
	return "a generated caption", nil
}

func (f *fakeModel) Evaluate(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error) {
	if f.evaluateFn != nil {
		return f.evaluateFn(ctx, image, mediaType, caption)
	}
	score := 3
	return models.Evaluation{Score: &score, Explanation: "plausible"}, nil
}

func setupTestServer(t *testing.T) (*Server, store.Store, *images.Library, *fakeModel) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	lib, err := images.NewLibrary(filepath.Join(dir, "CarData"))
	require.NoError(t, err)

	model := &fakeModel{}
	srv := NewServer(s, lib, model)
	return srv, s, lib, model
}

func addImage(t *testing.T, lib *images.Library, rel string) {
	t.Helper()
	abs := filepath.Join(lib.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte("jpeg-bytes"), 0644))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetReview_Empty(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "GET", "/review", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp DoneResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.Contains(t, resp.Message, "processed")
}

func TestGetReview_ReturnsHeadOfQueue(t *testing.T) {
	srv, _, lib, model := setupTestServer(t)
	addImage(t, lib, "front/a.jpg")
	addImage(t, lib, "rear/b.jpg")
	model.captionFn = func(ctx context.Context, image []byte, mediaType string) (string, error) {
		assert.Equal(t, "image/jpeg", mediaType)
		return "dented bumper", nil
	}

	w := doJSON(t, srv.Router(), "GET", "/review", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReviewItemResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "front/a.jpg", resp.ImagePath)
	assert.Equal(t, "dented bumper", resp.GemmaCaption)
	assert.Equal(t, 2, resp.Total)
}

func TestGetReview_CaptionFailureIsError(t *testing.T) {
	srv, _, lib, model := setupTestServer(t)
	addImage(t, lib, "a.jpg")
	model.captionFn = func(ctx context.Context, image []byte, mediaType string) (string, error) {
		return "", fmt.Errorf("model overloaded")
	}

	w := doJSON(t, srv.Router(), "GET", "/review", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "model overloaded")
}

func TestGetReview_NoModelConfigured(t *testing.T) {
	_, s, lib, _ := setupTestServer(t)
	srv := NewServer(s, lib, nil)

	w := doJSON(t, srv.Router(), "GET", "/review", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPostReview_InvalidAction(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{Action: "frobnicate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheck_ScoresBothCaptions(t *testing.T) {
	srv, _, lib, model := setupTestServer(t)
	addImage(t, lib, "a.jpg")
	model.evaluateFn = func(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error) {
		switch caption {
		case "dented bumper":
			n := 4
			return models.Evaluation{Score: &n, Explanation: "accurate"}, nil
		case "scratched door":
			n := 5
			return models.Evaluation{Score: &n, Explanation: "precise"}, nil
		}
		return models.Evaluation{}, fmt.Errorf("unexpected caption %q", caption)
	}

	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:        "check",
		ImagePath:     "a.jpg",
		GemmaCaption:  "dented bumper",
		ManualCaption: "scratched door",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp EvaluationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.GemmaScore)
	assert.Equal(t, 4, *resp.GemmaScore)
	assert.Equal(t, "accurate", resp.GemmaExplanation)
	require.NotNil(t, resp.ManualScore)
	assert.Equal(t, 5, *resp.ManualScore)
	assert.Equal(t, "precise", resp.ManualExplanation)
}

func TestCheck_EmptyManualCaptionNotScored(t *testing.T) {
	srv, _, lib, model := setupTestServer(t)
	addImage(t, lib, "a.jpg")
	model.evaluateFn = func(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error) {
		require.NotEmpty(t, caption, "empty captions must not reach the model")
		n := 4
		return models.Evaluation{Score: &n, Explanation: "ok"}, nil
	}

	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:       "check",
		ImagePath:    "a.jpg",
		GemmaCaption: "dented bumper",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp EvaluationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.GemmaScore)
	assert.Nil(t, resp.ManualScore)
	assert.Equal(t, "No manual caption provided", resp.ManualExplanation)
}

func TestCheck_MissingImage(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:       "check",
		ImagePath:    "missing.jpg",
		GemmaCaption: "caption",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSave_AdvancesToNextItem(t *testing.T) {
	srv, s, lib, model := setupTestServer(t)
	addImage(t, lib, "a.jpg")
	addImage(t, lib, "b.jpg")
	model.captionFn = func(ctx context.Context, image []byte, mediaType string) (string, error) {
		return "broken mirror", nil
	}

	score := 4
	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:        "save",
		ImagePath:     "a.jpg",
		GemmaCaption:  "dented bumper",
		ManualCaption: "scratched door",
		GemmaScore:    &score,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ReviewItemResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "b.jpg", resp.ImagePath)
	assert.Equal(t, "broken mirror", resp.GemmaCaption)
	assert.Equal(t, 1, resp.Total)

	saved, err := s.GetCaption(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "dented bumper", saved.GeneratedCaption)
	assert.Equal(t, "scratched door", saved.ManualCaption)
	require.NotNil(t, saved.GeneratedScore)
	assert.Equal(t, 4, *saved.GeneratedScore)
	assert.Nil(t, saved.ManualScore)
}

func TestSave_LastItemIsDone(t *testing.T) {
	srv, _, lib, _ := setupTestServer(t)
	addImage(t, lib, "a.jpg")

	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:       "save",
		ImagePath:    "a.jpg",
		GemmaCaption: "dented bumper",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp DoneResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.Equal(t, "All images processed!", resp.Message)
}

func TestSave_ScoreOutOfRange(t *testing.T) {
	srv, s, lib, _ := setupTestServer(t)
	addImage(t, lib, "a.jpg")

	score := 9
	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:       "save",
		ImagePath:    "a.jpg",
		GemmaCaption: "caption",
		GemmaScore:   &score,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	n, err := s.CountCaptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "rejected save must not persist anything")
}

func TestSave_NoModelDoesNotPersist(t *testing.T) {
	_, s, lib, _ := setupTestServer(t)
	srv := NewServer(s, lib, nil)
	addImage(t, lib, "a.jpg")

	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:       "save",
		ImagePath:    "a.jpg",
		GemmaCaption: "dented bumper",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	n, err := s.CountCaptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "save must not persist when it cannot complete")
}

func TestSave_MissingCaption(t *testing.T) {
	srv, _, lib, _ := setupTestServer(t)
	addImage(t, lib, "a.jpg")

	w := doJSON(t, srv.Router(), "POST", "/review", ReviewRequest{
		Action:    "save",
		ImagePath: "a.jpg",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadFolder_SavesImagesSkipsOthers(t *testing.T) {
	srv, _, lib, _ := setupTestServer(t)
	router := srv.Router()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"batch/front.jpg": "jpeg-bytes",
		"batch/notes.txt": "not an image",
	} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/upload_folder", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	pending, err := lib.Pending(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch/front.jpg"}, pending)
}

func TestUploadFolder_NoFiles(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	router := srv.Router()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/upload_folder", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadJSON_ZipHeaders(t *testing.T) {
	srv, s, _, _ := setupTestServer(t)
	require.NoError(t, s.SaveCaption(context.Background(), &models.Caption{
		ImagePath:        "a.jpg",
		GeneratedCaption: "dented bumper",
	}))

	w := doJSON(t, srv.Router(), "GET", "/download_json", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "car_damage_data.zip")
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestClearJSON(t *testing.T) {
	srv, s, _, _ := setupTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCaption(ctx, &models.Caption{
		ImagePath:        "a.jpg",
		GeneratedCaption: "caption",
	}))

	w := doJSON(t, srv.Router(), "POST", "/clear_json", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "1")

	n, err := s.CountCaptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestServeImage(t *testing.T) {
	srv, _, lib, _ := setupTestServer(t)
	addImage(t, lib, "front/a.jpg")

	w := doJSON(t, srv.Router(), "GET", "/images/front/a.jpg", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())
}

func TestServeImage_NotFound(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "GET", "/images/nope.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)
	w := doJSON(t, srv.Router(), "OPTIONS", "/review", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
