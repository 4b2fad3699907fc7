package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
)

// ErrMissingArkKey indicates the premium backend has no credentials.
var ErrMissingArkKey = errors.New("premium: ark api key is required")

// seedreamResponse is the part of an Ark images response the adapter reads.
type seedreamResponse struct {
	URLs      []string
	ErrorCode string
	ErrorMsg  string
}

type seedreamCall func(ctx context.Context, req model.GenerateImagesRequest) (seedreamResponse, error)

// PremiumOptions configures the SeeDream adapter.
type PremiumOptions struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Sources      SourceFetcher
	Logger       *infra.Logger
}

// PremiumAdapter drives SeeDream through the Ark runtime. The backend only
// returns hosted URLs.
type PremiumAdapter struct {
	call         seedreamCall
	sources      SourceFetcher
	resolutions  ResolutionTable
	defaultModel string
	logger       *infra.Logger
}

// NewPremiumAdapter builds an Ark client from opts.
func NewPremiumAdapter(opts PremiumOptions) (*PremiumAdapter, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrMissingArkKey
	}
	var client *arkruntime.Client
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		client = arkruntime.NewClientWithApiKey(key, arkruntime.WithBaseUrl(base))
	} else {
		client = arkruntime.NewClientWithApiKey(key)
	}
	call := func(ctx context.Context, req model.GenerateImagesRequest) (seedreamResponse, error) {
		resp, err := client.GenerateImages(ctx, req)
		if err != nil {
			return seedreamResponse{}, err
		}
		var out seedreamResponse
		if resp.Error != nil {
			out.ErrorCode = resp.Error.Code
			out.ErrorMsg = resp.Error.Message
		}
		for _, img := range resp.Data {
			if img.Url != nil && *img.Url != "" {
				out.URLs = append(out.URLs, *img.Url)
			}
		}
		return out, nil
	}
	return newPremiumAdapter(call, opts), nil
}

func newPremiumAdapter(call seedreamCall, opts PremiumOptions) *PremiumAdapter {
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	defaultModel := opts.DefaultModel
	if defaultModel == "" {
		defaultModel = "seedream-4-5-251128"
	}
	return &PremiumAdapter{
		call:         call,
		sources:      opts.Sources,
		resolutions:  PremiumResolutions,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (a *PremiumAdapter) ID() domain.ProviderID { return domain.ProviderPremium }

func (a *PremiumAdapter) Generate(ctx context.Context, req GenerateRequest) Result {
	r, err := a.request(req)
	if err != nil {
		return Failed(err.Error())
	}
	return a.do(ctx, r)
}

func (a *PremiumAdapter) Edit(ctx context.Context, req EditRequest) Result {
	r, err := a.request(req.GenerateRequest)
	if err != nil {
		return Failed(err.Error())
	}
	sources, err := FetchAll(ctx, a.sources, req.SourceRefs)
	if err != nil {
		return Failed(err.Error())
	}
	uris := make([]string, 0, len(sources))
	for _, src := range sources {
		uris = append(uris, "data:"+src.MIME+";base64,"+base64.StdEncoding.EncodeToString(src.Data))
	}
	if len(uris) == 1 {
		r.Image = uris[0]
	} else {
		r.Image = uris
	}
	return a.do(ctx, r)
}

func (a *PremiumAdapter) request(req GenerateRequest) (model.GenerateImagesRequest, error) {
	size, ok := a.resolutions.Resolve(req.Quality, req.Size)
	if !ok {
		return model.GenerateImagesRequest{}, fmt.Errorf("premium: unsupported quality %q / size %q", req.Quality, req.Size)
	}
	m := strings.TrimSpace(req.Model)
	if m == "" {
		m = a.defaultModel
	}
	return model.GenerateImagesRequest{
		Model:          m,
		Prompt:         req.Prompt,
		Size:           volcengine.String(size),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	}, nil
}

func (a *PremiumAdapter) do(ctx context.Context, req model.GenerateImagesRequest) Result {
	resp, err := a.call(ctx, req)
	if err != nil {
		return Failed(err.Error())
	}
	if resp.ErrorCode != "" || resp.ErrorMsg != "" {
		return Failed(fmt.Sprintf("seedream: %s: %s", resp.ErrorCode, resp.ErrorMsg))
	}
	if len(resp.URLs) == 0 {
		return Failed("seedream: empty response")
	}
	a.logger.Debug().Str("model", req.Model).Int("images", len(resp.URLs)).Msg("premium: image ready")
	return Succeeded(RemoteRef{URL: resp.URLs[0]})
}
