package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
)

// DepthArgs are the arguments for measureDefectDepth.
type DepthArgs struct {
	Location   string `json:"location"`
	DefectType string `json:"defect_type"`
}

// RoughnessArgs are the arguments for checkSurfaceRoughness.
type RoughnessArgs struct {
	MeasurementPoints int `json:"measurement_points"`
}

// PatternArgs are the arguments for analyzeDefectPattern.
type PatternArgs struct {
	DefectDescription string `json:"defect_description"`
}

// Executor dispatches tool calls from the navigation stage to the simulated
// instruments. Failures are captured per call and never abort the batch.
type Executor struct {
	ins     *instruments
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewExecutor creates an executor seeded for the simulated instruments.
func NewExecutor(seed int64, m *metrics.Metrics) *Executor {
	return newExecutor(seed, m, nil)
}

func newExecutor(seed int64, m *metrics.Metrics, now func() time.Time) *Executor {
	return &Executor{
		ins:     newInstruments(seed, now),
		metrics: m,
		logger:  logging.GetLogger("tools.executor"),
	}
}

// Execute runs every call in the batch and returns one result per call, in
// request order. A call that fails validation or dispatch yields a result
// with Error true; sibling calls still run.
func (e *Executor) Execute(ctx context.Context, calls []models.ToolCallRequest) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		select {
		case <-ctx.Done():
			results = append(results, errorResult(call, ctx.Err().Error()))
			e.countCall(call.Name, "error")
			continue
		default:
		}
		res := e.executeOne(call)
		outcome := "ok"
		if res.Error {
			outcome = "error"
			e.logger.WarnWithFields("tool call failed",
				logging.Field("tool", call.Name),
				logging.Field("reason", res.Message))
		} else {
			e.logger.DebugWithFields("tool call completed",
				logging.Field("tool", call.Name))
		}
		e.countCall(call.Name, outcome)
		results = append(results, res)
	}
	return results
}

func (e *Executor) executeOne(call models.ToolCallRequest) models.ToolResult {
	params, err := decodeParams(call.Arguments)
	if err != nil {
		return errorResult(call, models.NewToolExecutionError(call.Name, "invalid arguments: %v", err).Error())
	}
	if reason := missingRequired(call.Name, params); reason != "" {
		res := errorResult(call, models.NewToolExecutionError(call.Name, "%s", reason).Error())
		res.Parameters = params
		return res
	}

	result := models.ToolResult{ToolName: call.Name, Parameters: params}
	switch call.Name {
	case ToolMeasureDefectDepth:
		var args DepthArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errorResult(call, models.NewToolExecutionError(call.Name, "invalid arguments: %v", err).Error())
		}
		if !validDefectType(args.DefectType) {
			return errorResult(call, models.NewToolExecutionError(call.Name, "unknown defect_type %q", args.DefectType).Error())
		}
		result.Result = e.ins.measureDefectDepth(args.Location, args.DefectType)
	case ToolCheckSurfaceRoughness:
		var args RoughnessArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errorResult(call, models.NewToolExecutionError(call.Name, "invalid arguments: %v", err).Error())
		}
		if args.MeasurementPoints < 1 {
			args.MeasurementPoints = 3
		}
		result.Result = e.ins.checkSurfaceRoughness(args.MeasurementPoints)
	case ToolAnalyzeDefectPattern:
		var args PatternArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errorResult(call, models.NewToolExecutionError(call.Name, "invalid arguments: %v", err).Error())
		}
		result.Result = e.ins.analyzeDefectPattern(args.DefectDescription)
	default:
		return errorResult(call, models.NewToolExecutionError(call.Name, "unknown tool").Error())
	}
	return result
}

func (e *Executor) countCall(tool, outcome string) {
	if e.metrics != nil {
		e.metrics.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	}
}

// requiredParams mirrors the catalog's required field lists; the executor
// validates them before dispatch so an unknown or incomplete call fails
// closed instead of producing a reading from zero values.
var requiredParams = map[string][]string{
	ToolMeasureDefectDepth:    {"location", "defect_type"},
	ToolCheckSurfaceRoughness: {"measurement_points"},
	ToolAnalyzeDefectPattern:  {"defect_description"},
}

func validDefectType(t string) bool {
	for _, dt := range DefectTypes {
		if t == dt {
			return true
		}
	}
	return false
}

func missingRequired(tool string, params map[string]interface{}) string {
	required, ok := requiredParams[tool]
	if !ok {
		return ""
	}
	for _, field := range required {
		v, present := params[field]
		if !present || v == nil {
			return fmt.Sprintf("missing required parameter %q", field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Sprintf("missing required parameter %q", field)
		}
	}
	return ""
}

func decodeParams(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

func errorResult(call models.ToolCallRequest, msg string) models.ToolResult {
	return models.ToolResult{
		ToolName: call.Name,
		Error:    true,
		Message:  msg,
	}
}
