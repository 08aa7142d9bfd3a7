// Package tools implements the measurement tool catalog presented to the
// completion provider and the executor that dispatches its tool calls.
package tools

import (
	"github.com/fsalinas26/Guido/internal/provider"
)

// Tool names, dispatched by exact match.
const (
	ToolMeasureDefectDepth    = "measureDefectDepth"
	ToolCheckSurfaceRoughness = "checkSurfaceRoughness"
	ToolAnalyzeDefectPattern  = "analyzeDefectPattern"
)

// DefectTypes are the accepted defect_type values for measureDefectDepth.
// The executor rejects anything else before dispatch.
var DefectTypes = []string{"scratch", "pit", "gouge"}

// Domain constants for the simulated measurement instruments.
const (
	// ToleranceLimitMM is the standard defect depth tolerance.
	ToleranceLimitMM = 0.02

	// SpecLimitRaUm is the standard surface roughness spec (Ra, µm).
	SpecLimitRaUm = 1.6
)

// Definitions returns the fixed 3-tool catalog presented to the completion
// provider. Required fields listed here are enforced by the executor before
// dispatch.
func Definitions() []provider.ToolDefinition {
	return []provider.ToolDefinition{
		{
			Name:        ToolMeasureDefectDepth,
			Description: "Measures the depth of surface defects on brake rotors using a surface roughness gauge. Returns depth in millimeters.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": map[string]interface{}{
						"type":        "string",
						"description": `Location of defect on the rotor (e.g., "center", "edge", "face", "inner rim")`,
					},
					"defect_type": map[string]interface{}{
						"type":        "string",
						"enum":        DefectTypes,
						"description": "Type of defect being measured",
					},
				},
				"required": []string{"location", "defect_type"},
			},
		},
		{
			Name:        ToolCheckSurfaceRoughness,
			Description: "Checks overall surface roughness of brake rotor using calibrated gauge. Returns Ra (roughness average) values in micrometers.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"measurement_points": map[string]interface{}{
						"type":        "number",
						"description": "Number of points to measure across the surface (typically 3-5)",
					},
				},
				"required": []string{"measurement_points"},
			},
		},
		{
			Name:        ToolAnalyzeDefectPattern,
			Description: "Analyzes and identifies the pattern type of surface defects to determine likely cause (machining, handling, material defect)",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"defect_description": map[string]interface{}{
						"type":        "string",
						"description": `Worker's description of what the defect looks like (e.g., "circular scratches", "random pitting", "straight lines")`,
					},
				},
				"required": []string{"defect_description"},
			},
		},
	}
}
