package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mediaproc/config"
	"mediaproc/task"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"go.uber.org/zap"
)

// multipartOverhead is the headroom allowed on top of MAX_INPUT_SIZE for
// multipart boundaries and part headers.
const multipartOverhead = 64 << 10

type Handler struct {
	manager  *task.Manager
	registry *task.Registry
	cfg      *config.Config
	logger   *zap.Logger
}

func NewHandler(mgr *task.Manager, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		manager:  mgr,
		registry: mgr.Registry(),
		cfg:      cfg,
		logger:   logger,
	}
}

type ProcessRequest struct {
	TaskID       string `json:"task_id" binding:"required"`
	ProcessType  string `json:"process_type" binding:"required"`
	OutputFormat string `json:"output_format"`
	Quality      string `json:"quality"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

type StatusResponse struct {
	Status      task.Status `json:"status"`
	OutputFile  *string     `json:"output_file"`
	Error       *string     `json:"error"`
	DownloadURL string      `json:"download_url,omitempty"`
}

// statusFor maps lifecycle errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrInvalidUpload), errors.Is(err, task.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, task.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// handleUpload stores the uploaded file and registers a task for it.
func (h *Handler) handleUpload(c *gin.Context) {
	if h.cfg.MaxInputSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxInputSize+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectOversize(c)
			return
		}
		h.fail(c, fmt.Errorf("%w: no file uploaded", task.ErrInvalidUpload))
		return
	}

	filename := filepath.Base(file.Filename)
	if file.Filename == "" || filename == "." || filename == string(filepath.Separator) {
		h.fail(c, fmt.Errorf("%w: no file selected", task.ErrInvalidUpload))
		return
	}
	if _, err := task.ClassifyMedia(filename); err != nil {
		h.fail(c, err)
		return
	}
	if h.cfg.MaxInputSize > 0 && file.Size > h.cfg.MaxInputSize {
		h.rejectOversize(c)
		return
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0755); err != nil {
		h.fail(c, err)
		return
	}
	stored := fmt.Sprintf("%s_%s", shortuuid.New(), filename)
	storedPath := filepath.Join(h.cfg.UploadDir, stored)
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		h.fail(c, fmt.Errorf("failed to save upload: %w", err))
		return
	}

	t, err := h.manager.CreateTask(c.Request.Context(), stored)
	if err != nil {
		os.Remove(storedPath)
		h.fail(c, err)
		return
	}

	h.logger.Info("file uploaded",
		zap.String("trace_id", traceIDFrom(c)),
		zap.String("task_id", t.ID),
		zap.String("filename", filename),
		zap.Int64("size", file.Size),
	)
	c.JSON(http.StatusCreated, gin.H{"task_id": t.ID})
}

func (h *Handler) rejectOversize(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("file exceeds limit of %d bytes", h.cfg.MaxInputSize),
	})
}

// handleProcess runs the requested operation to completion before responding.
func (h *Handler) handleProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op := task.ProcessType(req.ProcessType)
	params, err := task.NewParams(op, req.OutputFormat, req.Quality, req.StartTime, req.EndTime)
	if err != nil {
		h.fail(c, err)
		return
	}

	final, err := h.manager.StartProcessing(c.Request.Context(), req.TaskID, op, params)
	var procErr *task.ProcessError
	switch {
	case errors.As(err, &procErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": final.Status,
			"error":  final.ErrorMessage,
		})
	case err != nil:
		h.fail(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"status":      final.Status,
			"output_file": final.OutputFile,
		})
	}
}

func (h *Handler) handleStatus(c *gin.Context) {
	t, err := h.registry.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := StatusResponse{Status: t.Status}
	if t.OutputFile != "" {
		resp.OutputFile = &t.OutputFile
		resp.DownloadURL = h.downloadURL(c, t.OutputFile)
	}
	if t.ErrorMessage != "" {
		resp.Error = &t.ErrorMessage
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleHistory(c *gin.Context) {
	tasks, err := h.registry.GetAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleDownload serves a produced output file as an attachment.
func (h *Handler) handleDownload(c *gin.Context) {
	filename := c.Param("filename")
	filePath, err := h.manager.OutputPath(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(filePath, filename)
}

// downloadURL constructs the full URL for a completed task's file.
func (h *Handler) downloadURL(c *gin.Context, filename string) string {
	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return fmt.Sprintf("%s/api/v1/download/%s", baseURL, filename)
}
