// mediaproc/api/handler_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaproc/config"
	"mediaproc/ffmpeg"
	"mediaproc/ledger"
	"mediaproc/task"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	succeedScript = "for last; do :; done\necho transcoded > \"$last\"\n"
	failScript    = "echo 'Invalid data found when processing input' >&2\nexit 1\n"
)

type testServer struct {
	router  *gin.Engine
	cfg     *config.Config
	manager *task.Manager
	argsLog string
}

// setupTestServer wires the real ledger and runner against a shell script
// standing in for ffmpeg.
func setupTestServer(t *testing.T, script string) *testServer {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	argsLog := filepath.Join(dir, "args.log")
	require.NoError(t, os.WriteFile(bin,
		[]byte("#!/bin/sh\nprintf '%s\\n' \"$@\" > "+argsLog+"\n"+script), 0755))

	cfg := &config.Config{
		FFBin:          bin,
		FFTimeout:      10 * time.Second,
		MaxConcurrency: 2,
		MaxInputSize:   1 << 20,
		UploadDir:      filepath.Join(dir, "uploads"),
		OutputDir:      filepath.Join(dir, "output"),
		LedgerDriver:   ledger.DriverJSON,
		LedgerPath:     filepath.Join(dir, "history.json"),
		BaseURL:        "http://media.test/",
	}
	logger := zaptest.NewLogger(t)

	store, err := ledger.Open(cfg)
	require.NoError(t, err)
	runner, err := ffmpeg.NewRunner(cfg, logger)
	require.NoError(t, err)
	mgr, err := task.NewManager(cfg, store, runner, logger)
	require.NoError(t, err)

	return &testServer{router: SetupRouter(mgr, cfg, logger), cfg: cfg, manager: mgr, argsLog: argsLog}
}

func (s *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) uploadTask(t *testing.T, filename string) string {
	w := s.upload(t, filename, []byte("media bytes"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["task_id"])
	return resp["task_id"]
}

func (s *testServer) process(t *testing.T, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/process", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) status(t *testing.T, id string) (int, StatusResponse) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/status/"+id, nil)
	s.router.ServeHTTP(w, req)
	var resp StatusResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestHandleUpload(t *testing.T) {
	s := setupTestServer(t, succeedScript)

	t.Run("creates an uploaded task", func(t *testing.T) {
		id := s.uploadTask(t, "clip.mp4")
		code, st := s.status(t, id)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, task.StatusUploaded, st.Status)
		assert.Nil(t, st.OutputFile)
		assert.Nil(t, st.Error)

		got, err := s.manager.Registry().GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, task.MediaVideo, got.MediaType)
		assert.True(t, strings.HasSuffix(got.InputFile, "_clip.mp4"))
		assert.FileExists(t, filepath.Join(s.cfg.UploadDir, got.InputFile))
	})

	t.Run("rejects missing file", func(t *testing.T) {
		w := s.upload(t, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects disallowed extension", func(t *testing.T) {
		w := s.upload(t, "script.sh", []byte("#!/bin/sh"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unsupported file extension")
	})

	t.Run("rejects oversize file", func(t *testing.T) {
		w := s.upload(t, "big.wav", make([]byte, 2<<20))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("oversize body is cut off before anything is stored", func(t *testing.T) {
		fresh := setupTestServer(t, succeedScript)
		for _, size := range []int64{fresh.cfg.MaxInputSize + 1, 8 << 20} {
			w := fresh.upload(t, "big.mp4", make([]byte, size))
			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "size %d", size)
		}

		entries, _ := os.ReadDir(fresh.cfg.UploadDir)
		assert.Empty(t, entries)
		tasks, err := fresh.manager.Registry().GetAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestHandleProcess(t *testing.T) {
	t.Run("trim with only a start bound", func(t *testing.T) {
		s := setupTestServer(t, succeedScript)
		id := s.uploadTask(t, "clip.mp4")

		w := s.process(t, `{"task_id":"`+id+`","process_type":"trim","start_time":"00:00:05"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"status":"completed","output_file":"`+id+`_trimmed.mp4"}`, w.Body.String())

		args, err := os.ReadFile(s.argsLog)
		require.NoError(t, err)
		assert.Contains(t, string(args), "-ss\n00:00:05\n")
		assert.NotContains(t, string(args), "-to")

		code, st := s.status(t, id)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, task.StatusCompleted, st.Status)
		require.NotNil(t, st.OutputFile)
		assert.Equal(t, id+"_trimmed.mp4", *st.OutputFile)
		assert.Nil(t, st.Error)
		assert.Equal(t, "http://media.test/api/v1/download/"+id+"_trimmed.mp4", st.DownloadURL)

		w = httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/download/"+id+"_trimmed.mp4", nil)
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.Equal(t, "transcoded\n", w.Body.String())
	})

	t.Run("tool failure is reported and recorded", func(t *testing.T) {
		s := setupTestServer(t, failScript)
		id := s.uploadTask(t, "song.mp3")

		w := s.process(t, `{"task_id":"`+id+`","process_type":"compress","quality":"low"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid data found when processing input")

		_, st := s.status(t, id)
		assert.Equal(t, task.StatusError, st.Status)
		assert.Nil(t, st.OutputFile)
		require.NotNil(t, st.Error)
		assert.Contains(t, *st.Error, "Invalid data found when processing input")
	})

	t.Run("unsupported operation never runs ffmpeg", func(t *testing.T) {
		s := setupTestServer(t, succeedScript)
		id := s.uploadTask(t, "clip.mkv")

		w := s.process(t, `{"task_id":"`+id+`","process_type":"reverse"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoFileExists(t, s.argsLog)

		_, st := s.status(t, id)
		assert.Equal(t, task.StatusError, st.Status)
		require.NotNil(t, st.Error)
		assert.Contains(t, *st.Error, "unsupported process type")

		entries, err := os.ReadDir(s.cfg.OutputDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unknown task", func(t *testing.T) {
		s := setupTestServer(t, succeedScript)
		s.uploadTask(t, "clip.mp4")
		before, err := os.ReadFile(s.cfg.LedgerPath)
		require.NoError(t, err)

		w := s.process(t, `{"task_id":"missing","process_type":"convert"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)

		after, err := os.ReadFile(s.cfg.LedgerPath)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("reprocessing is rejected", func(t *testing.T) {
		s := setupTestServer(t, succeedScript)
		id := s.uploadTask(t, "clip.mp4")
		require.Equal(t, http.StatusOK, s.process(t, `{"task_id":"`+id+`","process_type":"convert"}`).Code)

		w := s.process(t, `{"task_id":"`+id+`","process_type":"convert","output_format":"mkv"}`)
		assert.Equal(t, http.StatusConflict, w.Code)

		_, st := s.status(t, id)
		require.NotNil(t, st.OutputFile)
		assert.Equal(t, id+"_output.mp4", *st.OutputFile)
	})

	t.Run("bad requests", func(t *testing.T) {
		s := setupTestServer(t, succeedScript)
		assert.Equal(t, http.StatusBadRequest, s.process(t, `{"process_type":"convert"}`).Code)
		assert.Equal(t, http.StatusBadRequest, s.process(t, `{"task_id":"x","process_type":"convert","output_format":"../../x"}`).Code)
		assert.Equal(t, http.StatusBadRequest, s.process(t, `not json`).Code)
	})
}

func TestHandleHistory(t *testing.T) {
	s := setupTestServer(t, succeedScript)
	first := s.uploadTask(t, "a.mp4")
	second := s.uploadTask(t, "b.ogg")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/history", nil)
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var tasks []task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)
	assert.Equal(t, task.MediaAudio, tasks[1].MediaType)
}

func TestHandleStatusNotFound(t *testing.T) {
	s := setupTestServer(t, succeedScript)
	code, _ := s.status(t, "nonexistent")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleDownloadRejectsTraversal(t *testing.T) {
	s := setupTestServer(t, succeedScript)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/download/..%2Fhistory.json", nil)
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTraceIDHeader(t *testing.T) {
	s := setupTestServer(t, succeedScript)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Trace-ID", "abc-123")
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Trace-ID"))
}
