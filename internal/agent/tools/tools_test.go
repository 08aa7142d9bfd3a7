package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
}

func testExecutor(seed int64) *Executor {
	return newExecutor(seed, metrics.NewUnregistered(), fixedNow)
}

func call(name string, args string) models.ToolCallRequest {
	return models.ToolCallRequest{ID: "t-" + name, Name: name, Arguments: json.RawMessage(args)}
}

func TestDefinitionsCatalog(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 3)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		props, ok := d.InputSchema["properties"].(map[string]interface{})
		require.True(t, ok, "tool %s has no properties", d.Name)
		required, ok := d.InputSchema["required"].([]string)
		require.True(t, ok, "tool %s has no required list", d.Name)
		for _, field := range required {
			assert.Contains(t, props, field)
		}
	}
	assert.Equal(t, []string{ToolMeasureDefectDepth, ToolCheckSurfaceRoughness, ToolAnalyzeDefectPattern}, names)
}

func TestMeasureDefectDepthRanges(t *testing.T) {
	bounds := map[string][2]float64{
		"scratch": {0, 0.03},
		"pit":     {0.01, 0.03},
		"gouge":   {0.02, 0.04},
	}
	ins := newInstruments(7, fixedNow)
	for defectType, b := range bounds {
		for i := 0; i < 50; i++ {
			m := ins.measureDefectDepth("edge", defectType)
			depth, err := strconv.ParseFloat(m.DepthMM, 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, depth, b[0], "%s reading below range", defectType)
			assert.LessOrEqual(t, depth, b[1], "%s reading above range", defectType)
			assert.Equal(t, depth > ToleranceLimitMM, m.ToleranceExceeded)
			assert.Equal(t, ToleranceLimitMM, m.ToleranceLimitMM)
			assert.Equal(t, "edge", m.Location)
		}
	}
}

func TestCheckSurfaceRoughness(t *testing.T) {
	ins := newInstruments(7, fixedNow)
	m := ins.checkSurfaceRoughness(4)
	require.Len(t, m.MeasurementsRaUm, 4)
	assert.Equal(t, 4, m.MeasurementPoints)

	var sum float64
	for _, s := range m.MeasurementsRaUm {
		ra, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ra, 0.8)
		assert.LessOrEqual(t, ra, 2.0)
		sum += ra
	}
	avg, err := strconv.ParseFloat(m.AverageRaUm, 64)
	require.NoError(t, err)
	assert.InDelta(t, sum/4, avg, 0.01)
	assert.Equal(t, avg <= SpecLimitRaUm, m.WithinSpec)
}

func TestAnalyzeDefectPattern(t *testing.T) {
	cases := []struct {
		description string
		pattern     string
	}{
		{"concentric rings near the hub", "circular"},
		{"spiral marks on the face", "circular"},
		{"straight parallel scratches", "linear"},
		{"a single deep line across the face", "linear"},
		{"scattered pitting everywhere", "random"},
		{"small spots all over", "random"},
		{"odd discoloration", "random"},
	}
	ins := newInstruments(1, fixedNow)
	for _, tc := range cases {
		got := ins.analyzeDefectPattern(tc.description)
		assert.Equal(t, tc.pattern, got.PatternType, "description %q", tc.description)
		assert.NotEmpty(t, got.LikelyCause)
		assert.NotEmpty(t, got.SeverityAssessment)
		assert.Equal(t, tc.description, got.Description)
	}
}

func TestExecuteBatchIsolatesFailures(t *testing.T) {
	e := testExecutor(42)
	calls := []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":"center","defect_type":"scratch"}`),
		call(ToolCheckSurfaceRoughness, `{}`),
		call(ToolAnalyzeDefectPattern, `{"defect_description":"circular scratches"}`),
	}
	results := e.Execute(context.Background(), calls)
	require.Len(t, results, 3)

	assert.False(t, results[0].Error)
	require.NotNil(t, results[0].Result)
	assert.True(t, results[1].Error, "missing measurement_points should fail validation")
	assert.Contains(t, results[1].Message, "measurement_points")
	assert.False(t, results[2].Error)
	require.NotNil(t, results[2].Result)
}

func TestExecuteUnknownTool(t *testing.T) {
	e := testExecutor(1)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call("calibrateLaser", `{"power":9}`),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Error)
	assert.Contains(t, results[0].Message, "unknown tool")
}

func TestExecuteRejectsUnknownDefectType(t *testing.T) {
	e := testExecutor(1)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":"center","defect_type":"dent"}`),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Error)
	assert.Contains(t, results[0].Message, `unknown defect_type "dent"`)
	assert.Nil(t, results[0].Result)
}

func TestExecuteErrorMessageKeepsPercentSigns(t *testing.T) {
	e := testExecutor(1)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{%}`),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Error)
	assert.NotContains(t, results[0].Message, "%!")
}

func TestExecuteMalformedArguments(t *testing.T) {
	e := testExecutor(1)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":`),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Error)
	assert.Contains(t, results[0].Message, "invalid arguments")
}

func TestExecuteDeterministicBySeed(t *testing.T) {
	calls := []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":"face","defect_type":"pit"}`),
		call(ToolCheckSurfaceRoughness, `{"measurement_points":3}`),
	}
	a := testExecutor(99).Execute(context.Background(), calls)
	b := testExecutor(99).Execute(context.Background(), calls)
	assert.Equal(t, a, b)
}

func TestExecuteDefaultsMeasurementPoints(t *testing.T) {
	e := testExecutor(5)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolCheckSurfaceRoughness, `{"measurement_points":0}`),
	})
	require.Len(t, results, 1)
	require.False(t, results[0].Error)
	m, ok := results[0].Result.(RoughnessMeasurement)
	require.True(t, ok)
	assert.Equal(t, 3, m.MeasurementPoints)
}

func TestMeasurementsExtraction(t *testing.T) {
	e := testExecutor(11)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":"edge","defect_type":"gouge"}`),
		call(ToolCheckSurfaceRoughness, `{"measurement_points":5}`),
		call(ToolAnalyzeDefectPattern, `{"defect_description":"straight lines"}`),
		call(ToolMeasureDefectDepth, `{}`),
	})
	got := Measurements(results)
	require.Len(t, got, 3)
	assert.NotEmpty(t, got["defect_depth"])
	assert.NotEmpty(t, got["surface_roughness"])
	assert.Equal(t, "linear", got["defect_pattern"])
}

func TestNarrative(t *testing.T) {
	e := testExecutor(23)
	results := e.Execute(context.Background(), []models.ToolCallRequest{
		call(ToolMeasureDefectDepth, `{"location":"center","defect_type":"scratch"}`),
		call(ToolAnalyzeDefectPattern, `{}`),
	})
	text := Narrative(results)
	assert.Contains(t, text, "Defect depth measurement at the center")
	assert.Contains(t, text, "wasn't able to complete the analyzeDefectPattern measurement")
	assert.Contains(t, text, "\n\n")
}
