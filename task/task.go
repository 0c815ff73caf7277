package task

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

var (
	videoExtensions = map[string]bool{"mp4": true, "avi": true, "mov": true, "mkv": true, "webm": true}
	audioExtensions = map[string]bool{"mp3": true, "wav": true, "ogg": true, "flac": true, "m4a": true}
)

// Task is one ledger record. Optional fields stay zero, and are omitted from
// JSON, until the lifecycle manager sets them.
type Task struct {
	ID           string      `json:"task_id"`
	InputFile    string      `json:"input_file"`
	OutputFile   string      `json:"output_file,omitempty"`
	Status       Status      `json:"status"`
	MediaType    MediaType   `json:"media_type"`
	ProcessType  ProcessType `json:"process_type,omitempty"`
	CreatedAt    int64       `json:"created_at"`
	CompletedAt  int64       `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Extension returns the lowercased extension of the stored input, without the dot.
func (t Task) Extension() string {
	return Extension(t.InputFile)
}

// Extension returns the lowercased extension of name, without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// ClassifyMedia derives the media type from a filename, rejecting anything
// outside the accepted video and audio extensions.
func ClassifyMedia(filename string) (MediaType, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidUpload)
	}
	ext := Extension(filename)
	switch {
	case videoExtensions[ext]:
		return MediaVideo, nil
	case audioExtensions[ext]:
		return MediaAudio, nil
	}
	return "", fmt.Errorf("%w: unsupported file extension %q", ErrInvalidUpload, ext)
}

// NewID returns a fresh task identifier.
func NewID() string {
	return fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix())
}
