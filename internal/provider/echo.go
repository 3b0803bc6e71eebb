package provider

import (
	"context"
)

// Echo is the development provider: it implements every capability by
// reflecting its input back, so flows can be exercised without external
// credentials.
type Echo struct{}

// NewEcho constructs the echo provider.
func NewEcho() *Echo {
	return &Echo{}
}

// Name implements the provider interfaces.
func (e *Echo) Name() string { return "echo" }

// Generate returns the prompt unchanged.
func (e *Echo) Generate(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

// Embed folds the text bytes into a fixed-width deterministic vector.
func (e *Echo) Embed(_ context.Context, text string) ([]float32, error) {
	const width = 8
	vec := make([]float32, width)
	for i, b := range []byte(text) {
		vec[i%width] += float32(b) / 255
	}
	return vec, nil
}

// Synthesize returns the UTF-8 bytes of the text as the audio payload.
func (e *Echo) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}
