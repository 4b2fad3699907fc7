// Package openai is a minimal client for the OpenAI Images API
// (generations and edits).
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagebot/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// Options configures the client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Images API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest captures the inputs for a generation or edit call.
type ImageRequest struct {
	Model   string
	Prompt  string
	Size    string
	Quality string
	// Images are the edit sources. Empty means a plain generation.
	Images []File
}

// File is one uploaded source image.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Image is the decoded first image of a response. Exactly one of Data or
// URL is set: gpt-image models return b64_json, older models may return a URL.
type Image struct {
	Data          []byte
	URL           string
	RevisedPrompt string
}

type generationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imagesResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Generate calls /images/generations once.
func (c *Client) Generate(ctx context.Context, req ImageRequest) (*Image, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("openai: prompt is required")
	}
	body, err := json.Marshal(generationRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    req.Size,
		Quality: req.Quality,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, req.Model)
}

// Edit calls /images/edits once with every source image attached.
func (c *Client) Edit(ctx context.Context, req ImageRequest) (*Image, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(req.Images) == 0 {
		return nil, errors.New("openai: at least one source image is required")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	field := "image"
	if len(req.Images) > 1 {
		field = "image[]"
	}
	for i, img := range req.Images {
		if err := writeFilePart(writer, field, img, i); err != nil {
			return nil, fmt.Errorf("openai: encode image: %w", err)
		}
	}
	_ = writer.WriteField("model", req.Model)
	_ = writer.WriteField("prompt", req.Prompt)
	_ = writer.WriteField("n", "1")
	if req.Size != "" {
		_ = writer.WriteField("size", req.Size)
	}
	if req.Quality != "" {
		_ = writer.WriteField("quality", req.Quality)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("openai: encode form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(httpReq, req.Model)
}

func (c *Client) do(httpReq *http.Request, model string) (*Image, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			code := detail.Error.Code
			if code == "" {
				code = detail.Error.Type
			}
			return nil, fmt.Errorf("openai: %s (%s)", detail.Error.Message, code)
		}
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded imagesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("openai: empty response")
	}
	first := decoded.Data[0]
	out := &Image{URL: strings.TrimSpace(first.URL), RevisedPrompt: first.RevisedPrompt}
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		out.Data = data
		out.URL = ""
	}
	if len(out.Data) == 0 && out.URL == "" {
		return nil, errors.New("openai: response carried no image")
	}
	c.logger.Debug().
		Str("model", model).
		Int("bytes", len(out.Data)).
		Bool("remote", out.URL != "").
		Msg("openai: image received")
	return out, nil
}

func writeFilePart(w *multipart.Writer, field string, f File, index int) error {
	name := f.Name
	if name == "" {
		name = fmt.Sprintf("image-%d.png", index+1)
	}
	mime := f.MIME
	if mime == "" {
		mime = "image/png"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	header.Set("Content-Type", mime)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
