package moderation

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Class
	}{
		{"empty", "", Retryable},
		{"whitespace", "   ", Retryable},
		{"timeout", "provider timeout", Retryable},
		{"rate limit", "Rate limit reached for images per minute", Retryable},
		{"server error", "openai: status 500: upstream connect error", Retryable},
		{"openai policy", "Your request was rejected as a result of our safety system.", Moderation},
		{"openai code", "openai: moderation_blocked (image_generation_user_error)", Moderation},
		{"content policy upper", "CONTENT POLICY violation detected", Moderation},
		{"ark sensitive output", "ark: OutputImageSensitiveContentDetected - The request failed", Moderation},
		{"ark sensitive input", "ark: InputTextSensitiveContentDetected", Moderation},
		{"inappropriate content", "The prompt contains inappropriate content", Moderation},
		{"inappropriate parameter", "size is inappropriate for this model", Retryable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.msg); got != tc.want {
				t.Fatalf("Classify(%q) = %s, want %s", tc.msg, got, tc.want)
			}
		})
	}
}
