package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"google.golang.org/genai"

	"github.com/agentflux/fluxdiff/internal/config"
)

const markerFormat = "Input may include multiple files. For each file, output must follow this format:\n" +
	"%%%%filename:\n$$$$\n<entire file with your changes in place>\n$$$$\n%%%%filename\n" +
	"Output every file, even when it is unchanged. Do not remove lines or replace them with placeholder text."

var instructions = map[RefinementType]string{
	RefinePrompts: "You are a specialist in prompt engineering. Locate every human-written prompt or message " +
		"in the code and rewrite it to be clear, precise and descriptive. Do not touch any other code and " +
		"preserve formatting and indentation so the result is immediately executable.\n" + markerFormat,
	RearchitectGraph: "You are a software architect for agent graphs. Restructure the agent graph into a modular, " +
		"production-ready codebase, decomposing complex nodes and assigning each node a model from the " +
		"allowed list.\n" + markerFormat,
}

// Gemini refines code with a Gemini model.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini backend from explicit configuration.
func NewGemini(ctx context.Context, cfg config.Backend) (*Gemini, error) {
	return newGemini(ctx, cfg, genai.HTTPOptions{})
}

func newGemini(ctx context.Context, cfg config.Backend, opts genai.HTTPOptions) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini backend requires an api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Refine sends the code with an instruction for the refinement type.
func (g *Gemini) Refine(ctx context.Context, req Request) (string, error) {
	instruction, ok := instructions[req.Type]
	if !ok {
		return "", fmt.Errorf("unsupported refinement type %q", req.Type)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := req.Code
	if req.Type == RearchitectGraph && len(req.AllowedModels) > 0 {
		prompt = fmt.Sprintf("Allowed models: %v\n\n%s", req.AllowedModels, req.Code)
	}

	model := pickModel(g.model, req.AllowedModels)
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	return resp.Text(), nil
}

// pickModel keeps the configured model unless the caller restricted the
// models and the configured one is not among them.
func pickModel(configured string, allowed []string) string {
	if len(allowed) == 0 || slices.Contains(allowed, configured) {
		return configured
	}
	return allowed[0]
}
