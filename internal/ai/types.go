// Package ai defines the AI proxy contract: transcription and text analysis
// backed by a generative model. The model is an opaque async collaborator;
// every call either returns a complete result or a generic failure, never a
// partial one.
package ai

import "context"

// Transcription is the result of analyzing one audio log.
type Transcription struct {
	Transcript string `json:"transcript"`
	Milestone  bool   `json:"milestone"`
	Summary    string `json:"summary"`
}

// Service is the full proxy surface. Implemented by Gemini (in-process,
// key-holding) and Client (HTTP, against a remote proxy).
type Service interface {
	Transcribe(ctx context.Context, audioBase64, mimeType string) (Transcription, error)
	SuggestTitle(ctx context.Context, logs string) (title, subtitle string, err error)
	Recap(ctx context.Context, logs string) (string, error)
	Insight(ctx context.Context, transcript string) (string, error)
	Persona(ctx context.Context, logs string) (string, error)
}
