// Package backend invokes the refinement agent that rewrites a marked bundle.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentflux/fluxdiff/internal/config"
)

// RefinementType names what the backend is asked to do.
type RefinementType string

const (
	RefinePrompts    RefinementType = "refine_prompts"
	RearchitectGraph RefinementType = "rearchitect_graph"
)

// Valid reports whether t is a known refinement type.
func (t RefinementType) Valid() bool {
	return t == RefinePrompts || t == RearchitectGraph
}

// Request is one refinement call.
type Request struct {
	Type          RefinementType
	Code          string
	AllowedModels []string
}

// Refiner turns the aggregated original code into refined code that uses the
// same marker convention.
type Refiner interface {
	Name() string
	Refine(ctx context.Context, req Request) (string, error)
}

// Echo returns the code unchanged.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Refine(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return req.Code, nil
}

// New selects a backend by provider name.
func New(ctx context.Context, cfg config.Backend) (Refiner, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "echo":
		return Echo{}, nil
	case "gemini":
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}
