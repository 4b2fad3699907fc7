// Package image adapts heterogeneous image backends to one request/result
// shape so the dispatcher never branches on backend identity.
package image

import (
	"context"

	"imagebot/internal/domain"
)

// Payload is what a successful call produced: bytes or a fetchable URL.
type Payload interface {
	isPayload()
}

// InlinePayload is image data returned in the response body.
type InlinePayload struct {
	Data []byte
	MIME string
}

// RemoteRef is a URL the backend hosts the result at.
type RemoteRef struct {
	URL string
}

func (InlinePayload) isPayload() {}
func (RemoteRef) isPayload()     {}

// Result is either a payload or a failure message. The message is the raw
// backend text and is only used for classification and audit.
type Result struct {
	Payload Payload
	Message string
}

// Succeeded wraps a payload.
func Succeeded(p Payload) Result {
	return Result{Payload: p}
}

// Failed wraps a failure message.
func Failed(message string) Result {
	if message == "" {
		message = "unknown provider error"
	}
	return Result{Message: message}
}

// OK reports whether the call produced a payload.
func (r Result) OK() bool {
	return r.Payload != nil && r.Message == ""
}

// GenerateRequest describes a text-to-image call.
type GenerateRequest struct {
	Model   string
	Prompt  string
	Quality domain.Quality
	Size    domain.Size
}

// EditRequest is a generation conditioned on one or more source images.
type EditRequest struct {
	GenerateRequest
	SourceRefs []string
}

// Adapter is implemented once per backend. Implementations make exactly one
// upstream attempt per call.
type Adapter interface {
	ID() domain.ProviderID
	Generate(ctx context.Context, req GenerateRequest) Result
	Edit(ctx context.Context, req EditRequest) Result
}

// RequestFromTask builds the adapter input for a stored task.
func RequestFromTask(t *domain.Task) EditRequest {
	return EditRequest{
		GenerateRequest: GenerateRequest{
			Model:   t.Model,
			Prompt:  t.Prompt,
			Quality: t.Quality,
			Size:    t.Size,
		},
		SourceRefs: append([]string(nil), t.SourceRefs...),
	}
}
