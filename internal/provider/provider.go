// Package provider holds the external collaborators of the pipeline:
// object storage, the speech-to-text provider, and the LLM. The pipeline
// consumes the interfaces; the HTTP clients here are the production
// implementations.
package provider

import (
	"context"
	"fmt"
)

// Provider stages, recorded on errors and failed jobs.
const (
	StageStorage      = "storage"
	StageSpeechToText = "speech_to_text"
	StageLLM          = "llm"
)

// Error is a typed provider failure. The message is persisted onto the
// failed job for diagnostics and the error re-raised to the caller.
type Error struct {
	Stage   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error: %s", e.Stage, e.Message)
}

// Object is a fetched storage blob.
type Object struct {
	Bytes       []byte
	ContentType string
}

// Storage fetches raw bytes for a stored path.
type Storage interface {
	GetBuffer(ctx context.Context, path string) (*Object, error)
}

// SpeechToText transcribes audio bytes. language is an optional hint.
type SpeechToText interface {
	Transcribe(ctx context.Context, data []byte, contentType, language string) (string, error)
}

// InvokeRequest is one LLM chat call requiring a single JSON object back.
type InvokeRequest struct {
	SystemPrompt string
	UserText     string
	Temperature  float64
}

// InvokeResponse carries the raw content plus provider-reported token counts.
type InvokeResponse struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// LLM is the structured-extraction provider.
type LLM interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}
