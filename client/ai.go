package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andrejsstepanovs/architect/models"
	fastshot "github.com/opus-domini/fast-shot"
	"github.com/rs/zerolog"
)

var (
	// ErrGenerationFailed covers transport, service and timeout failures.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrInvalidResponse is returned when the service answer is unparseable
	// or does not match the project schema.
	ErrInvalidResponse = errors.New("invalid response from AI")
	// ErrEmptyRequest is returned for a blank request; no call is made.
	ErrEmptyRequest = errors.New("feature request is empty")
)

const (
	ProviderGemini  = "gemini"
	ProviderLitellm = "litellm"
)

var defaultBaseURLs = map[string]string{
	ProviderGemini:  "https://generativelanguage.googleapis.com",
	ProviderLitellm: "http://localhost:4000",
}

// Options configures a Generator.
type Options struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Generator produces project revisions through an external model.
type Generator struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	timeout  time.Duration
	logger   zerolog.Logger
}

// New validates opts and returns a Generator.
func New(opts Options) (*Generator, error) {
	base, ok := defaultBaseURLs[opts.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported client: %s", opts.Provider)
	}
	if opts.BaseURL != "" {
		base = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}

	return &Generator{
		provider: opts.Provider,
		baseURL:  base,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With().Str("component", "client").Str("provider", opts.Provider).Logger(),
	}, nil
}

func (g *Generator) client() fastshot.ClientHttpMethods {
	c := fastshot.NewClient(g.baseURL)
	if g.apiKey != "" {
		switch g.provider {
		case ProviderGemini:
			c.Header().Add("x-goog-api-key", g.apiKey)
		default:
			c.Auth().BearerToken(g.apiKey)
		}
	}

	return c.Config().SetTimeout(g.timeout).
		Config().SetFollowRedirects(true).
		Header().Add("Content-Type", "application/json").
		Build()
}

// Generate asks the model to evolve project according to request. A blank
// request issues no call and returns ErrEmptyRequest.
func (g *Generator) Generate(ctx context.Context, project models.Project, request string) (*models.Revision, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}

	prompt, err := BuildPrompt(project, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	start := time.Now()
	var text string
	switch g.provider {
	case ProviderGemini:
		text, err = g.gemini(ctx, prompt)
	case ProviderLitellm:
		text, err = g.litellm(ctx, prompt)
	default:
		err = fmt.Errorf("%w: unsupported client: %s", ErrGenerationFailed, g.provider)
	}
	if err != nil {
		g.logger.Error().Err(err).Int("request_len", len(request)).Dur("took", time.Since(start)).Msg("generation call failed")
		return nil, err
	}

	rev, err := DecodeRevision(text)
	if err != nil {
		g.logger.Error().Err(err).Int("response_len", len(text)).Msg("failed to parse model response")
		return nil, err
	}

	g.logger.Info().
		Int("modules", len(rev.Modules)).
		Int("files", len(rev.Files)).
		Dur("took", time.Since(start)).
		Msg("generation completed")
	return rev, nil
}

func (g *Generator) gemini(ctx context.Context, prompt string) (string, error) {
	req := models.GeminiRequest{
		Contents: []models.GeminiContent{{
			Role:  "user",
			Parts: []models.GeminiPart{{Text: prompt}},
		}},
		GenerationConfig: models.GeminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   ResponseSchema,
		},
	}

	var res models.GeminiResponse
	if err := post(ctx, g, "/v1beta/models/"+g.model+":generateContent", req, &res); err != nil {
		return "", err
	}
	return res.Text(), nil
}

func (g *Generator) litellm(ctx context.Context, prompt string) (string, error) {
	req := models.ChatRequest{
		Model: g.model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: "You are an expert full-stack developer. Answer with a single JSON object only."},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &models.ResponseFormat{Type: "json_object"},
	}

	var res models.ChatResponse
	if err := post(ctx, g, "/v1/chat/completions", req, &res); err != nil {
		return "", err
	}
	return res.Text(), nil
}

func post[T any](ctx context.Context, g *Generator, path string, body any, result *T) error {
	resp, err := g.client().
		POST(path).
		Context().Set(ctx).
		Header().Add("Accept", "application/json").
		Body().AsJSON(body).
		Send()
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %v", ErrGenerationFailed, err)
	}
	defer resp.Body().Close()

	return parseHTTPResponse(*resp, result)
}

func parseHTTPResponse[T any](resp fastshot.Response, result *T) error {
	if resp.Status().IsError() {
		msg, err := resp.Body().AsString()
		if err != nil {
			return fmt.Errorf("%w: failed to read error response: %v", ErrGenerationFailed, err)
		}
		return fmt.Errorf("%w: %s", ErrGenerationFailed, strings.TrimSpace(msg))
	}

	err := resp.Body().AsJSON(result)
	if err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrInvalidResponse, err)
	}

	return nil
}
