package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

const maxSourceBytes = 20 << 20

// SourceImage is a fetched edit input.
type SourceImage struct {
	Name string
	MIME string
	Data []byte
}

// SourceFetcher turns a stored source reference into image bytes.
type SourceFetcher interface {
	Fetch(ctx context.Context, ref string) (SourceImage, error)
}

// FileLocator resolves a messenger file id into a downloadable URL.
type FileLocator func(fileID string) (string, error)

// HTTPSources downloads http(s) refs directly and resolves anything else
// through the locator.
type HTTPSources struct {
	client *http.Client
	locate FileLocator
}

// NewHTTPSources builds a fetcher. locate may be nil when refs are always URLs.
func NewHTTPSources(client *http.Client, locate FileLocator) *HTTPSources {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPSources{client: client, locate: locate}
}

func (s *HTTPSources) Fetch(ctx context.Context, ref string) (SourceImage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SourceImage{}, errors.New("source: empty reference")
	}
	url := ref
	if !isHTTPURL(ref) {
		if s.locate == nil {
			return SourceImage{}, fmt.Errorf("source: cannot resolve %q", ref)
		}
		located, err := s.locate(ref)
		if err != nil {
			return SourceImage{}, fmt.Errorf("source: locate file: %w", err)
		}
		url = located
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return SourceImage{}, fmt.Errorf("source: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return SourceImage{}, fmt.Errorf("source: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return SourceImage{}, fmt.Errorf("source: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return SourceImage{}, fmt.Errorf("source: read body: %w", err)
	}
	if len(data) > maxSourceBytes {
		return SourceImage{}, errors.New("source: image too large")
	}
	if len(data) == 0 {
		return SourceImage{}, errors.New("source: empty image")
	}

	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return SourceImage{Name: sourceName(req.URL.Path, mime), MIME: mime, Data: data}, nil
}

// FetchAll resolves refs in order and stops at the first failure.
func FetchAll(ctx context.Context, f SourceFetcher, refs []string) ([]SourceImage, error) {
	if f == nil {
		return nil, errors.New("source: no fetcher configured")
	}
	out := make([]SourceImage, 0, len(refs))
	for i, ref := range refs {
		img, err := f.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func isHTTPURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

func sourceName(urlPath, mime string) string {
	base := path.Base(urlPath)
	if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
		return base
	}
	switch mime {
	case "image/jpeg":
		return "source.jpg"
	case "image/webp":
		return "source.webp"
	default:
		return "source.png"
	}
}
