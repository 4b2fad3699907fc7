package image

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/providers/openai"
)

type openaiImages interface {
	Generate(ctx context.Context, req openai.ImageRequest) (*openai.Image, error)
	Edit(ctx context.Context, req openai.ImageRequest) (*openai.Image, error)
}

// editModelFallback lists models whose edit endpoint is served by another model.
var editModelFallback = map[string]string{
	"gpt-image-1.5": "gpt-image-1",
}

// StandardAdapter drives the OpenAI Images API. Responses carry the image
// inline.
type StandardAdapter struct {
	client       openaiImages
	sources      SourceFetcher
	resolutions  ResolutionTable
	defaultModel string
	logger       *infra.Logger
}

// NewStandardAdapter wires the adapter. defaultModel is used when a task does
// not name one.
func NewStandardAdapter(client openaiImages, sources SourceFetcher, defaultModel string, logger *infra.Logger) *StandardAdapter {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if defaultModel == "" {
		defaultModel = "gpt-image-1"
	}
	return &StandardAdapter{
		client:       client,
		sources:      sources,
		resolutions:  StandardResolutions,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (a *StandardAdapter) ID() domain.ProviderID { return domain.ProviderStandard }

func (a *StandardAdapter) Generate(ctx context.Context, req GenerateRequest) Result {
	size, ok := a.resolutions.Resolve(req.Quality, req.Size)
	if !ok {
		return Failed(fmt.Sprintf("standard: unsupported quality %q / size %q", req.Quality, req.Size))
	}
	img, err := a.client.Generate(ctx, openai.ImageRequest{
		Model:   a.model(req.Model),
		Prompt:  req.Prompt,
		Size:    size,
		Quality: string(req.Quality),
	})
	if err != nil {
		return Failed(err.Error())
	}
	return normalizeOpenAI(img)
}

func (a *StandardAdapter) Edit(ctx context.Context, req EditRequest) Result {
	size, ok := a.resolutions.Resolve(req.Quality, req.Size)
	if !ok {
		return Failed(fmt.Sprintf("standard: unsupported quality %q / size %q", req.Quality, req.Size))
	}
	sources, err := FetchAll(ctx, a.sources, req.SourceRefs)
	if err != nil {
		return Failed(err.Error())
	}
	files := make([]openai.File, 0, len(sources))
	for _, src := range sources {
		files = append(files, openai.File{Name: src.Name, MIME: src.MIME, Data: src.Data})
	}

	model := a.model(req.Model)
	if fallback, ok := editModelFallback[model]; ok {
		a.logger.Debug().Str("model", model).Str("edit_model", fallback).Msg("standard: edit model fallback")
		model = fallback
	}
	img, err := a.client.Edit(ctx, openai.ImageRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Size:    size,
		Quality: string(req.Quality),
		Images:  files,
	})
	if err != nil {
		return Failed(err.Error())
	}
	return normalizeOpenAI(img)
}

func (a *StandardAdapter) model(requested string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	return a.defaultModel
}

func normalizeOpenAI(img *openai.Image) Result {
	switch {
	case img == nil:
		return Failed("standard: empty response")
	case len(img.Data) > 0:
		return Succeeded(InlinePayload{Data: img.Data, MIME: http.DetectContentType(img.Data)})
	case img.URL != "":
		return Succeeded(RemoteRef{URL: img.URL})
	default:
		return Failed("standard: response carried no image")
	}
}
