package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

func newClient(baseURL, apiKey string, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return c
}

// StorageClient fetches objects over HTTP from the file service.
type StorageClient struct {
	http *resty.Client
}

func NewStorageClient(baseURL, apiKey string, timeout time.Duration) *StorageClient {
	return &StorageClient{http: newClient(baseURL, apiKey, timeout)}
}

func (c *StorageClient) GetBuffer(ctx context.Context, path string) (*Object, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("path", path).
		Get("/objects/{path}")
	if err != nil {
		return nil, &Error{Stage: StageStorage, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &Error{Stage: StageStorage, Message: fmt.Sprintf("status %d fetching %q", resp.StatusCode(), path)}
	}
	return &Object{
		Bytes:       resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

// STTClient calls the external speech-to-text provider.
type STTClient struct {
	http *resty.Client
}

func NewSTTClient(baseURL, apiKey string, timeout time.Duration) *STTClient {
	return &STTClient{http: newClient(baseURL, apiKey, timeout)}
}

type sttResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (c *STTClient) Transcribe(ctx context.Context, data []byte, contentType, language string) (string, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data)
	if language != "" {
		req.SetQueryParam("language", language)
	}
	resp, err := req.Post("/v1/transcribe")
	if err != nil {
		return "", &Error{Stage: StageSpeechToText, Message: err.Error()}
	}
	var out sttResponse
	if jsonErr := json.Unmarshal(resp.Body(), &out); jsonErr != nil {
		return "", &Error{Stage: StageSpeechToText, Message: fmt.Sprintf("status %d: unreadable response", resp.StatusCode())}
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return "", &Error{Stage: StageSpeechToText, Message: msg}
	}
	return out.Text, nil
}

// LLMClient calls the chat-completion provider with a JSON-object response
// format.
type LLMClient struct {
	http  *resty.Client
	model string
}

func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration) *LLMClient {
	return &LLMClient{http: newClient(baseURL, apiKey, timeout), model: model}
}

type llmRequest struct {
	Model          string  `json:"model"`
	System         string  `json:"system"`
	User           string  `json:"user"`
	ResponseFormat string  `json:"response_format"`
	Temperature    float64 `json:"temperature"`
}

type llmResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	Error string `json:"error,omitempty"`
}

func (c *LLMClient) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	body := llmRequest{
		Model:          c.model,
		System:         req.SystemPrompt,
		User:           req.UserText,
		ResponseFormat: "json_object",
		Temperature:    req.Temperature,
	}
	var out llmResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/chat")
	if err != nil {
		return nil, &Error{Stage: StageLLM, Message: err.Error()}
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return nil, &Error{Stage: StageLLM, Message: msg}
	}
	return &InvokeResponse{
		Content:      out.Content,
		Model:        out.Model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}
