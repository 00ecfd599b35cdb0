package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// parameterProperties describes the run parameters a call may override.
// Omitted values keep the server's configuration.
func parameterProperties() map[string]interface{} {
	return map[string]interface{}{
		"watershed": map[string]interface{}{
			"type":        "boolean",
			"description": "Split touching organoids along distance-map watersheds",
		},
		"invert": map[string]interface{}{
			"type":        "boolean",
			"description": "True for light organoids on a dark background",
		},
		"round_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Organoids need roundness strictly above this value",
		},
		"area_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Organoids need calibrated area strictly above this value",
		},
		"minimum_size": map[string]interface{}{
			"type":        "integer",
			"description": "Smallest particle kept, in pixels",
		},
		"maximum_size": map[string]interface{}{
			"type":        "integer",
			"description": "Largest particle kept, in pixels (0 for no limit)",
		},
		"scale_preset": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"evos-10x", "evos-4x", "custom"},
			"description": "Microscope scale preset",
		},
		"pixel_width": map[string]interface{}{
			"type":        "number",
			"description": "Pixel width in calibrated units (implies custom preset)",
		},
		"pixel_height": map[string]interface{}{
			"type":        "number",
			"description": "Pixel height in calibrated units (implies custom preset)",
		},
	}
}

func withParameters(props map[string]interface{}) map[string]interface{} {
	for k, v := range parameterProperties() {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and bit depth.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_evict",
			Description: "Drop one image from the decoded image cache, or every image when no path is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path of the cached image. Omit to clear the cache",
					},
				},
			},
		},
		{
			Name:        "organoid_analyze",
			Description: "Count and measure the organoids in one microscopy image. Returns the automatic threshold, per-organoid measurements in report order and, unless disabled, the annotated image as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withParameters(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the annotated PNG in the result. Default true",
						"default":     true,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "organoid_batch",
			Description: "Process every image below an input directory (one group per subfolder) and write the CSV report and annotated images to an output directory.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withParameters(map[string]interface{}{
					"input_dir": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path of the directory holding the images or group subfolders",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path of the directory receiving the report and ROI_Images",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Number of images processed in parallel. Default: number of CPUs",
					},
				}),
				"required": []string{"input_dir", "output_dir"},
			},
		},
		{
			Name:        "organoid_verify_labels",
			Description: "Analyze one image, then read every drawn organoid index back with OCR and report labels that do not read as their index.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withParameters(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				}),
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
