package pool

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/laguz/internal/models"
)

// request is the message a worker receives for one task.
type request struct {
	TaskID string       `json:"taskId"`
	File   *fileMessage `json:"file"`
}

// fileMessage uses pointers so absent fields can be told from empty ones.
type fileMessage struct {
	Name    *string `json:"name"`
	Path    *string `json:"path"`
	Content *string `json:"content"`
}

// response is the message a worker answers with.
type response struct {
	TaskID  string       `json:"taskId"`
	Success bool         `json:"success"`
	Note    *models.Note `json:"note,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func encodeRequest(taskID string, f models.RawFile) ([]byte, error) {
	return json.Marshal(request{
		TaskID: taskID,
		File:   &fileMessage{Name: &f.Name, Path: &f.Path, Content: &f.Content},
	})
}

// decodeRequest validates a raw request message.
func decodeRequest(data []byte) (string, models.RawFile, error) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return "", models.RawFile{}, fmt.Errorf("malformed message: %w", err)
	}
	if req.File == nil {
		return req.TaskID, models.RawFile{}, errors.New("invalid message: missing file")
	}
	switch {
	case req.File.Name == nil:
		return req.TaskID, models.RawFile{}, errors.New("invalid file: missing name")
	case req.File.Content == nil:
		return req.TaskID, models.RawFile{}, errors.New("invalid file: missing content")
	}
	f := models.RawFile{Name: *req.File.Name, Content: *req.File.Content}
	if req.File.Path != nil {
		f.Path = *req.File.Path
	}
	return req.TaskID, f, nil
}
