package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ironsheep/organoid-counter/internal/batch"
	"github.com/ironsheep/organoid-counter/internal/config"
	"github.com/ironsheep/organoid-counter/internal/detection"
	"github.com/ironsheep/organoid-counter/internal/imaging"
	"github.com/ironsheep/organoid-counter/internal/ocr"
	"github.com/ironsheep/organoid-counter/internal/report"
)

// ErrNoReader is returned by the label audit tool when the server has no
// OCR engine.
var ErrNoReader = errors.New("no OCR reader configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "organoid_analyze").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "image_evict":
		return s.handleImageEvict(args)
	case "organoid_analyze":
		return s.handleAnalyze(ctx, args)
	case "organoid_batch":
		return s.handleBatch(ctx, args)
	case "organoid_verify_labels":
		return s.handleVerifyLabels(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// runParams are the per-call overrides shared by the organoid tools.
type runParams struct {
	Watershed      *bool    `json:"watershed"`
	Invert         *bool    `json:"invert"`
	RoundThreshold *float64 `json:"round_threshold"`
	AreaThreshold  *float64 `json:"area_threshold"`
	MinimumSize    *int     `json:"minimum_size"`
	MaximumSize    *int     `json:"maximum_size"`
	ScalePreset    *string  `json:"scale_preset"`
	PixelWidth     *float64 `json:"pixel_width"`
	PixelHeight    *float64 `json:"pixel_height"`
	Workers        *int     `json:"workers"`
}

// apply layers the overrides on base. Tool calls cannot wait for an
// operator, so the threshold is always automatic, and a server started in
// interactive mode drops its single-worker limit.
func (p runParams) apply(base config.Run) (config.Run, error) {
	cfg := base
	if base.ThresholdMode == config.ThresholdInteractive {
		cfg.Workers = 0
	}
	cfg.ThresholdMode = config.ThresholdAutomatic

	if p.Watershed != nil {
		cfg.Watershed = *p.Watershed
	}
	if p.Invert != nil {
		cfg.Invert = *p.Invert
	}
	if p.RoundThreshold != nil {
		cfg.RoundThreshold = *p.RoundThreshold
	}
	if p.AreaThreshold != nil {
		cfg.AreaThreshold = *p.AreaThreshold
	}
	if p.MinimumSize != nil {
		cfg.MinimumSize = *p.MinimumSize
	}
	if p.MaximumSize != nil {
		cfg.MaximumSize = *p.MaximumSize
	}
	if p.ScalePreset != nil {
		cfg.ScalePreset = *p.ScalePreset
	}
	if p.PixelWidth != nil {
		cfg.PixelWidth = *p.PixelWidth
		cfg.ScalePreset = config.PresetCustom
	}
	if p.PixelHeight != nil {
		cfg.PixelHeight = *p.PixelHeight
		cfg.ScalePreset = config.PresetCustom
	}
	if p.Workers != nil {
		cfg.Workers = *p.Workers
	}
	return cfg.Resolve()
}

// analyze runs one cached image through the pipeline.
func (s *Server) analyze(ctx context.Context, path string, p runParams) (*batch.Result, config.Run, error) {
	if path == "" {
		return nil, config.Run{}, fmt.Errorf("path is required")
	}
	cfg, err := p.apply(s.cfg)
	if err != nil {
		return nil, config.Run{}, err
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, config.Run{}, err
	}

	name := filepath.Base(path)
	res, err := batch.NewPipeline(cfg, imaging.AutoThreshold{}).ProcessImage(ctx, name, img)
	if err != nil {
		return nil, config.Run{}, err
	}
	return res, cfg, nil
}

// === Basic Image Information ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type imageEvictArgs struct {
	Path string `json:"path"`
}

// EvictResult is the image_evict response.
type EvictResult struct {
	Evicted string `json:"evicted"`
	Cached  int    `json:"cached"`
}

func (s *Server) handleImageEvict(args json.RawMessage) (interface{}, error) {
	var a imageEvictArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}
	if a.Path == "" {
		s.cache.Clear()
		return &EvictResult{Evicted: "all", Cached: s.cache.Len()}, nil
	}
	s.cache.Evict(a.Path)
	return &EvictResult{Evicted: a.Path, Cached: s.cache.Len()}, nil
}

// === Organoid Tools ===

type analyzeArgs struct {
	Path         string `json:"path"`
	IncludeImage *bool  `json:"include_image"`
	runParams
}

// AnalyzeResult is the organoid_analyze response.
type AnalyzeResult struct {
	File         string                   `json:"file"`
	Unit         string                   `json:"unit"`
	Threshold    uint8                    `json:"threshold"`
	Inverted     bool                     `json:"inverted"`
	Components   int                      `json:"components"`
	Excluded     detection.Exclusions     `json:"excluded"`
	NumOrganoids int                      `json:"num_organoids"`
	Measurements []report.Measurement     `json:"measurements"`
	Labels       []imaging.LabelPlacement `json:"labels"`
	Warnings     []string                 `json:"warnings,omitempty"`
	AnnotatedPNG string                   `json:"annotated_png,omitempty"`
}

func (s *Server) handleAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, cfg, err := s.analyze(ctx, a.Path, a.runParams)
	if err != nil {
		return nil, err
	}

	out := &AnalyzeResult{
		File:         res.Filename,
		Unit:         cfg.Unit,
		Threshold:    res.Threshold,
		Inverted:     res.Inverted,
		Components:   res.Extraction.Components,
		Excluded:     res.Extraction.Excluded,
		NumOrganoids: len(res.Records),
		Measurements: make([]report.Measurement, 0, len(res.Records)),
		Labels:       res.Annotated.Labels,
		Warnings:     res.Warnings,
	}
	for _, rec := range res.Records {
		out.Measurements = append(out.Measurements, report.Project(rec))
	}

	if a.IncludeImage == nil || *a.IncludeImage {
		out.AnnotatedPNG, err = res.Annotated.EncodeBase64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type batchArgs struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	runParams
}

func (s *Server) handleBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	base := s.cfg
	base.InputDir = a.InputDir
	base.OutputDir = a.OutputDir
	cfg, err := a.runParams.apply(base)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDirs(); err != nil {
		return nil, err
	}

	runner := batch.NewRunner(cfg, imaging.AutoThreshold{})
	return runner.Run(ctx, batch.DirSource{Root: cfg.InputDir})
}

type verifyArgs struct {
	Path string `json:"path"`
	runParams
}

// VerifyResult is the organoid_verify_labels response.
type VerifyResult struct {
	File         string `json:"file"`
	NumOrganoids int    `json:"num_organoids"`
	*ocr.LabelAudit
}

func (s *Server) handleVerifyLabels(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.reader == nil {
		return nil, ErrNoReader
	}
	var a verifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, cfg, err := s.analyze(ctx, a.Path, a.runParams)
	if err != nil {
		return nil, err
	}

	audit, err := ocr.AuditLabels(res.Annotated, s.reader, ocr.AuditOptions{LabelColor: cfg.LabelColor})
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		File:         res.Filename,
		NumOrganoids: len(res.Records),
		LabelAudit:   audit,
	}, nil
}
