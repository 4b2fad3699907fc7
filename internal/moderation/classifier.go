// Package moderation separates content-policy refusals, which are final,
// from transient provider failures, which are retried.
package moderation

import "strings"

// Class is the failure category of a provider error message.
type Class int

const (
	Retryable Class = iota
	Moderation
)

func (c Class) String() string {
	if c == Moderation {
		return "moderation"
	}
	return "retryable"
}

// policyPhrases are matched case-insensitively against provider error text.
// OpenAI and Ark both surface refusals in the message body, not as a status code.
var policyPhrases = []string{
	"content policy",
	"content_policy_violation",
	"safety system",
	"moderation_blocked",
	"rejected by the safety",
	"not allowed by our safety",
	"sensitive content",
	"inappropriate content",
	"outputimagesensitivecontentdetected",
	"inputtextsensitivecontentdetected",
	"inputimagesensitivecontentdetected",
}

// Classify is pure and total. Unrecognized and empty messages are Retryable.
func Classify(message string) Class {
	msg := strings.ToLower(message)
	if strings.TrimSpace(msg) == "" {
		return Retryable
	}
	for _, phrase := range policyPhrases {
		if strings.Contains(msg, phrase) {
			return Moderation
		}
	}
	return Retryable
}
