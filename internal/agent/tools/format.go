package tools

import (
	"fmt"
	"strings"

	"github.com/fsalinas26/Guido/internal/models"
)

// Narrative renders a batch of tool results as worker-facing text, one
// paragraph per result, separated by blank lines.
func Narrative(results []models.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, narrateOne(r))
	}
	return strings.Join(parts, "\n\n")
}

func narrateOne(r models.ToolResult) string {
	if r.Error {
		return fmt.Sprintf("I wasn't able to complete the %s measurement: %s.", r.ToolName, r.Message)
	}
	switch v := r.Result.(type) {
	case DepthMeasurement:
		verdict := "within the acceptable tolerance"
		if v.ToleranceExceeded {
			verdict = "beyond the acceptable tolerance"
		}
		return fmt.Sprintf("Defect depth measurement at the %s: %smm (%s). That is %s of %.2fmm.",
			v.Location, v.DepthMM, v.DefectType, verdict, v.ToleranceLimitMM)
	case RoughnessMeasurement:
		verdict := "within spec"
		if !v.WithinSpec {
			verdict = "out of spec"
		}
		return fmt.Sprintf("Surface roughness across %d points averaged %s µm Ra, which is %s against the %.1f µm Ra limit. Individual readings: %s µm.",
			v.MeasurementPoints, v.AverageRaUm, verdict, v.SpecLimitRaUm, strings.Join(v.MeasurementsRaUm, ", "))
	case PatternAnalysis:
		return fmt.Sprintf("Pattern analysis identified a %s defect pattern. Likely cause: %s. Severity: %s.",
			v.PatternType, v.LikelyCause, v.SeverityAssessment)
	default:
		return fmt.Sprintf("Completed %s.", r.ToolName)
	}
}
