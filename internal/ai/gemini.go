package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini calls the generative model directly. It holds the API key, so it
// only ever runs server-side; browsers and remote Go clients go through
// Client and the proxy routes instead.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBaseURL,
		http:    &http.Client{},
	}
}

// NewGeminiWithBaseURL points the client at an alternate endpoint. Tests use
// this with a local fake.
func NewGeminiWithBaseURL(apiKey, model, baseURL string) *Gemini {
	g := NewGemini(apiKey, model)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInline   `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig *struct {
		ResponseMimeType string `json:"responseMimeType,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate runs one model call and returns the text of the first candidate.
func (g *Gemini) generate(ctx context.Context, parts []geminiPart, jsonMode bool) (string, error) {
	var req geminiRequest
	req.Contents = make([]struct {
		Parts []geminiPart `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts
	if jsonMode {
		req.GenerationConfig = &struct {
			ResponseMimeType string `json:"responseMimeType,omitempty"`
		}{ResponseMimeType: "application/json"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func (g *Gemini) Transcribe(ctx context.Context, audioBase64, mimeType string) (Transcription, error) {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	parts := []geminiPart{
		{Text: `Transcribe this audio log exactly. Also, generate a short 1-sentence summary and determine if it's a 'Milestone' breakthrough. Format strictly as JSON: { "transcript": string, "milestone": boolean, "summary": string }`},
		{InlineData: &geminiInline{MimeType: mimeType, Data: audioBase64}},
	}

	text, err := g.generate(ctx, parts, true)
	if err != nil {
		return Transcription{}, err
	}

	var result Transcription
	if err := json.Unmarshal([]byte(stripFences(text)), &result); err != nil {
		return Transcription{}, fmt.Errorf("gemini: malformed transcription: %w", err)
	}
	return result, nil
}

func (g *Gemini) SuggestTitle(ctx context.Context, logs string) (string, string, error) {
	prompt := fmt.Sprintf(`Based on these voice logs, suggest a creative 2-3 word title and a 4-5 word subtitle for this person's learning journey. Logs: %s
Format strictly as JSON: { "title": string, "subtitle": string }`, logs)

	text, err := g.generate(ctx, []geminiPart{{Text: prompt}}, true)
	if err != nil {
		return "", "", err
	}

	var result struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &result); err != nil {
		return "", "", fmt.Errorf("gemini: malformed title suggestion: %w", err)
	}
	return result.Title, result.Subtitle, nil
}

func (g *Gemini) Recap(ctx context.Context, logs string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following learning journey logs into a single inspirational "Weekly Recap" paragraph. Focus on the narrative arc of their effort. Logs: %s`, logs)
	return g.generate(ctx, []geminiPart{{Text: prompt}}, false)
}

func (g *Gemini) Insight(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf(`The user recorded this log: "%s". Give them a one-sentence piece of personalized encouragement or a relevant "next step" tip. Be warm, human, and specific.`, transcript)
	return g.generate(ctx, []geminiPart{{Text: prompt}}, false)
}

func (g *Gemini) Persona(ctx context.Context, logs string) (string, error) {
	prompt := fmt.Sprintf(`Based on these learning journals, describe the user's "Learning Persona" in 3 sentences. Focus on their attitude, their strengths in overcoming obstacles, and their emotional tone. Logs: %s`, logs)
	return g.generate(ctx, []geminiPart{{Text: prompt}}, false)
}
