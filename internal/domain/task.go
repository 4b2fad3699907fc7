package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskKind distinguishes text-to-image generation from image editing.
type TaskKind string

const (
	TaskKindGenerate TaskKind = "generate"
	TaskKindEdit     TaskKind = "edit"
)

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// ProviderID is the closed set of generation backends a task can be routed to.
type ProviderID string

const (
	// ProviderStandard is the OpenAI images backend. It returns inline payloads.
	ProviderStandard ProviderID = "standard"
	// ProviderPremium is the SeeDream backend. It returns remote references.
	ProviderPremium ProviderID = "premium"
)

// ParseProviderID validates a provider identifier.
func ParseProviderID(raw string) (ProviderID, error) {
	switch ProviderID(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderStandard:
		return ProviderStandard, nil
	case ProviderPremium:
		return ProviderPremium, nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidTask, raw)
}

// ProviderForModel maps a backend model name onto the adapter serving it.
func ProviderForModel(model string) ProviderID {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "seedream") {
		return ProviderPremium
	}
	return ProviderStandard
}

// Quality is the tier selector. Standard models take low/medium/high,
// premium models take 2k/4k.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	Quality2K     Quality = "2k"
	Quality4K     Quality = "4k"
)

// Size is the aspect selector shared by every provider.
type Size string

const (
	SizeSquare    Size = "1024x1024"
	SizePortrait  Size = "1024x1536"
	SizeLandscape Size = "1536x1024"
)

// Valid reports whether s is one of the supported aspect selectors.
func (s Size) Valid() bool {
	switch s {
	case SizeSquare, SizePortrait, SizeLandscape:
		return true
	}
	return false
}

// MaxSourceRefs bounds the number of images accepted by an edit task.
const MaxSourceRefs = 10

// Task is one paid generation request.
type Task struct {
	ID                  int64
	AccountID           int64
	Kind                TaskKind
	Provider            ProviderID
	Model               string
	Quality             Quality
	Size                Size
	Prompt              string
	SourceRefs          []string
	TokensCharged       int64
	ProviderUnitsUsed   int64
	Status              TaskStatus
	RetryCount          int
	ResultURL           string
	ResultKey           string
	DeliveredArtifactID string
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.SourceRefs != nil {
		out.SourceRefs = append([]string(nil), t.SourceRefs...)
	}
	return &out
}

// TaskUpdate carries the optional field changes applied together with a
// status transition. Nil fields are left untouched.
type TaskUpdate struct {
	RetryCount          *int
	ErrorMessage        *string
	ResultURL           *string
	ResultKey           *string
	DeliveredArtifactID *string
	ProviderUnitsUsed   *int64
}

// Apply copies the non-nil fields of u onto t.
func (u TaskUpdate) Apply(t *Task) {
	if u.RetryCount != nil {
		t.RetryCount = *u.RetryCount
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.ResultURL != nil {
		t.ResultURL = *u.ResultURL
	}
	if u.ResultKey != nil {
		t.ResultKey = *u.ResultKey
	}
	if u.DeliveredArtifactID != nil {
		t.DeliveredArtifactID = *u.DeliveredArtifactID
	}
	if u.ProviderUnitsUsed != nil {
		t.ProviderUnitsUsed = *u.ProviderUnitsUsed
	}
}
