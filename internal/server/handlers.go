package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/render"
	"github.com/agentflux/fluxdiff/model"
)

type processRequest struct {
	RefinementType     string            `json:"refinementType"`
	Code               string            `json:"code"`
	BrokenDownOriginal map[string]string `json:"brokenDownOriginal"`
	AllowedModels      []string          `json:"allowedModels"`
}

type processResponse struct {
	RequestID           string                      `json:"requestId"`
	DiffReport          map[string]string           `json:"diffReport"`
	DiffLines           map[string][]model.DiffLine `json:"diffLines"`
	RefinedGraphCode    string                      `json:"refinedGraphCode"`
	RefinedGraphDiagram string                      `json:"refinedGraphDiagram"`
	BrokenDownRefined   map[string]string           `json:"brokenDownRefined"`
	Diagnostics         []codec.Diagnostic          `json:"diagnostics"`
}

type decodeRequest struct {
	Code string `json:"code"`
}

type decodeResponse struct {
	Files       map[string]string  `json:"files"`
	Diagnostics []codec.Diagnostic `json:"diagnostics"`
}

type encodeRequest struct {
	Files map[string]string `json:"files"`
}

type encodeResponse struct {
	Code string `json:"code"`
}

type diffRequest struct {
	Filename string `json:"filename"`
	Original string `json:"original"`
	Refined  string `json:"refined"`
}

type diffResponse struct {
	Lines   []model.DiffLine `json:"lines"`
	HTML    string           `json:"html"`
	Added   int              `json:"added"`
	Deleted int              `json:"deleted"`
}

// decodeBody reads a capped JSON body and writes the error response itself
// when it fails.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" && len(req.BrokenDownOriginal) == 0 {
		writeError(w, http.StatusBadRequest, "code or brokenDownOriginal is required")
		return
	}

	id := requestID(r.Context())
	result, err := s.app.Process(r.Context(), fluxdiff.Request{
		RefinementType:     req.RefinementType,
		Code:               req.Code,
		BrokenDownOriginal: req.BrokenDownOriginal,
		AllowedModels:      req.AllowedModels,
	})
	if err != nil {
		var backendErr *fluxdiff.BackendError
		var detailed *fluxdiff.DetailedError
		switch {
		case errors.Is(err, fluxdiff.ErrInvalidRefinementType):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &backendErr):
			s.logger.Error("backend failed", zap.String("request_id", id), zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.As(err, &detailed):
			s.logger.Error("internal panic", zap.String("request_id", id), zap.Error(err), zap.ByteString("stack", detailed.Stack))
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			s.logger.Error("process failed", zap.String("request_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	lines := make(map[string][]model.DiffLine, len(result.DiffLines))
	for name, report := range result.DiffLines {
		lines[name] = report.Lines
	}
	diags := result.Diagnostics
	if diags == nil {
		diags = []codec.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, processResponse{
		RequestID:           id,
		DiffReport:          result.DiffReport,
		DiffLines:           lines,
		RefinedGraphCode:    result.RefinedGraphCode,
		RefinedGraphDiagram: result.RefinedGraphDiagram,
		BrokenDownRefined:   result.BrokenDownRefined,
		Diagnostics:         diags,
	})
}

func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	files, diags := s.app.Decode(req.Code)
	if diags == nil {
		diags = []codec.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, decodeResponse{Files: files, Diagnostics: diags})
}

func (s *Server) encodeHandler(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	for name := range req.Files {
		if !codec.ValidFilename(name) {
			writeError(w, http.StatusBadRequest, "filename cannot be encoded: "+name)
			return
		}
	}
	writeJSON(w, http.StatusOK, encodeResponse{Code: s.app.Encode(req.Files)})
}

func (s *Server) diffHandler(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	report := s.app.Diff(req.Filename, req.Original, req.Refined)
	writeJSON(w, http.StatusOK, diffResponse{
		Lines:   report.Lines,
		HTML:    render.HTML(report),
		Added:   report.Added(),
		Deleted: report.Deleted(),
	})
}
