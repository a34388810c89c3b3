package fluxdiff

import (
	"context"

	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/model"
)

// DecodeBundle parses a marked bundle into a filename to body map.
func DecodeBundle(text string) map[string]string {
	return codec.Decode(text)
}

// EncodeBundle packs files into the canonical marked form.
func EncodeBundle(files map[string]string) string {
	return codec.Encode(model.Bundle(files))
}

// Compare diffs two marked bundles file by file and returns the unified diff
// text of every file that differs.
func Compare(originalCode, refinedCode string) (map[string]string, error) {
	reports, err := diffreport.ComputeAll(context.Background(), codec.Decode(originalCode), codec.Decode(refinedCode))
	if err != nil {
		return nil, err
	}

	diffs := make(map[string]string)
	for name, report := range reports {
		if report.Identical() {
			continue
		}
		diffs[name] = diffreport.String(report)
	}
	return diffs, nil
}
