package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/service"
)

const (
	toolClassifyRisk         = "classify_risk"
	toolCreateAssessment     = "create_assessment"
	toolCalculateAssessment  = "calculate_assessment"
	toolGetAssessment        = "get_assessment"
	toolGetAssessmentHistory = "get_assessment_history"
)

var toolNames = []string{
	toolClassifyRisk,
	toolCreateAssessment,
	toolCalculateAssessment,
	toolGetAssessment,
	toolGetAssessmentHistory,
}

// Tool invocation outcomes.
const (
	outcomeSuccess  = "success"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// ClassifyRiskParams defines parameters for classify_risk tool
type ClassifyRiskParams struct {
	Del17pTP53         string   `json:"del17p_tp53" jsonschema:"del(17p) or TP53 mutation status: positive or negative"`
	TranslocationCombo string   `json:"translocation_combo" jsonschema:"t(4;14), t(14;16) or t(14;20) together with +1q or del(1p32): positive or negative"`
	Del1p32            string   `json:"del1p32_1q" jsonschema:"monoallelic del(1p32) with +1q, or biallelic del(1p32): positive or negative"`
	B2MValue           *float64 `json:"b2m_value,omitempty" jsonschema:"serum β2-microglobulin in mg/L"`
	CreatinineValue    *float64 `json:"creatinine_value,omitempty" jsonschema:"serum creatinine in mg/dL"`
}

// CreateAssessmentParams defines parameters for create_assessment tool
type CreateAssessmentParams struct {
	PatientID          *string  `json:"patient_id,omitempty"`
	PatientName        *string  `json:"patient_name,omitempty"`
	Del17pTP53         string   `json:"del17p_tp53"`
	TranslocationCombo string   `json:"translocation_combo"`
	Del1p32            string   `json:"del1p32_1q"`
	B2MValue           *float64 `json:"b2m_value,omitempty"`
	CreatinineValue    *float64 `json:"creatinine_value,omitempty"`
	ClinicalNotes      *string  `json:"clinical_notes,omitempty"`
	PhysicianName      *string  `json:"physician_name,omitempty"`
	Institution        *string  `json:"institution,omitempty"`
	PerformedBy        *string  `json:"performed_by,omitempty" jsonschema:"clinician recorded in the audit trail"`
}

// AssessmentIDParams defines parameters for the tools addressing one assessment
type AssessmentIDParams struct {
	AssessmentID string  `json:"assessment_id"`
	PerformedBy  *string `json:"performed_by,omitempty" jsonschema:"clinician recorded in the audit trail"`
}

// handleClassifyRisk handles the classify_risk tool invocation
func (s *Server) handleClassifyRisk(ctx context.Context, req *mcp.CallToolRequest, params ClassifyRiskParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolClassifyRisk).Info("Tool invoked")

	create := &domain.CreateAssessmentRequest{
		Del17pTP53:         params.Del17pTP53,
		TranslocationCombo: params.TranslocationCombo,
		Del1p32:            params.Del1p32,
		B2MValue:           params.B2MValue,
		CreatinineValue:    params.CreatinineValue,
	}
	if errs := service.ValidateAssessment(create); len(errs) > 0 {
		s.observe(toolClassifyRisk, outcomeInvalid)
		return s.createErrorResult(domain.MsgValidationFailed, errors.New(strings.Join(errs, "; "))), nil, nil
	}

	report := service.EvaluateProfile(domain.GeneticProfile{
		Del17pTP53:         domain.MarkerStatus(params.Del17pTP53),
		TranslocationCombo: domain.MarkerStatus(params.TranslocationCombo),
		Del1p32:            domain.MarkerStatus(params.Del1p32),
		B2MValue:           params.B2MValue,
		CreatinineValue:    params.CreatinineValue,
	})
	s.observe(toolClassifyRisk, outcomeSuccess)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Risk classification: %s (%d high-risk criteria met)\n\n%s",
					report.RiskResult, report.TotalRiskFactors, report.ClinicalInterpretation),
			},
		},
	}, report, nil
}

// handleCreateAssessment handles the create_assessment tool invocation
func (s *Server) handleCreateAssessment(ctx context.Context, req *mcp.CallToolRequest, params CreateAssessmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolCreateAssessment).Info("Tool invoked")

	assessment, err := s.service.Create(ctx, &domain.CreateAssessmentRequest{
		PatientID:          params.PatientID,
		PatientName:        params.PatientName,
		Del17pTP53:         params.Del17pTP53,
		TranslocationCombo: params.TranslocationCombo,
		Del1p32:            params.Del1p32,
		B2MValue:           params.B2MValue,
		CreatinineValue:    params.CreatinineValue,
		ClinicalNotes:      params.ClinicalNotes,
		PhysicianName:      params.PhysicianName,
		Institution:        params.Institution,
	}, params.PerformedBy)
	if err != nil {
		return s.toolError(toolCreateAssessment, err), nil, nil
	}
	s.observe(toolCreateAssessment, outcomeSuccess)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Assessment %s created with status %s", assessment.ID, assessment.Status),
			},
		},
	}, assessment, nil
}

// handleCalculateAssessment handles the calculate_assessment tool invocation
func (s *Server) handleCalculateAssessment(ctx context.Context, req *mcp.CallToolRequest, params AssessmentIDParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolCalculateAssessment).Info("Tool invoked")

	if params.AssessmentID == "" {
		s.observe(toolCalculateAssessment, outcomeInvalid)
		return s.createErrorResult("Missing required parameter", fmt.Errorf("assessment_id is required")), nil, nil
	}

	calc, err := s.service.Calculate(ctx, params.AssessmentID, params.PerformedBy)
	if err != nil {
		return s.toolError(toolCalculateAssessment, err), nil, nil
	}
	s.observe(toolCalculateAssessment, outcomeSuccess)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Assessment %s calculated: %s (%d high-risk criteria met)\n\n%s",
					calc.AssessmentID, calc.RiskResult, calc.TotalRiskFactors, calc.ClinicalInterpretation),
			},
		},
	}, calc, nil
}

// handleGetAssessment handles the get_assessment tool invocation
func (s *Server) handleGetAssessment(ctx context.Context, req *mcp.CallToolRequest, params AssessmentIDParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolGetAssessment).Info("Tool invoked")

	if params.AssessmentID == "" {
		s.observe(toolGetAssessment, outcomeInvalid)
		return s.createErrorResult("Missing required parameter", fmt.Errorf("assessment_id is required")), nil, nil
	}

	assessment, err := s.service.Get(ctx, params.AssessmentID)
	if err != nil {
		return s.toolError(toolGetAssessment, err), nil, nil
	}
	s.observe(toolGetAssessment, outcomeSuccess)

	summary := fmt.Sprintf("Assessment %s is %s (version %d)", assessment.ID, assessment.Status, assessment.Version)
	if assessment.RiskResult != nil {
		summary += fmt.Sprintf(", risk result %s", *assessment.RiskResult)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
		},
	}, assessment, nil
}

// AssessmentHistoryResult defines the result structure for get_assessment_history tool
type AssessmentHistoryResult struct {
	AssessmentID string                 `json:"assessment_id"`
	Entries      []*domain.HistoryEntry `json:"entries"`
}

// handleGetAssessmentHistory handles the get_assessment_history tool invocation
func (s *Server) handleGetAssessmentHistory(ctx context.Context, req *mcp.CallToolRequest, params AssessmentIDParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolGetAssessmentHistory).Info("Tool invoked")

	if params.AssessmentID == "" {
		s.observe(toolGetAssessmentHistory, outcomeInvalid)
		return s.createErrorResult("Missing required parameter", fmt.Errorf("assessment_id is required")), nil, nil
	}

	entries, err := s.service.History(ctx, params.AssessmentID)
	if err != nil {
		return s.toolError(toolGetAssessmentHistory, err), nil, nil
	}
	s.observe(toolGetAssessmentHistory, outcomeSuccess)

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("%d history entries for assessment %s", len(entries), params.AssessmentID))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s", e.Timestamp.Format(time.RFC3339), e.Action))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.Join(lines, "\n")},
		},
	}, AssessmentHistoryResult{AssessmentID: params.AssessmentID, Entries: entries}, nil
}

// toolError converts a service error into a tool error result. Internal
// failures are logged and reported without their cause.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.observe(tool, outcomeInvalid)
		return s.createErrorResult(verr.Message, errors.New(strings.Join(verr.Details, "; ")))
	case errors.Is(err, domain.ErrNotFound):
		s.observe(tool, outcomeNotFound)
		return s.createErrorResult(domain.MsgNotFound, nil)
	default:
		s.observe(tool, outcomeError)
		s.logger.WithFields(logrus.Fields{
			"tool":  tool,
			"error": err,
		}).Error("Tool invocation failed")
		return s.createErrorResult(domain.MsgInternalServer, nil)
	}
}

// createErrorResult creates an error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func (s *Server) observe(tool, outcome string) {
	if s.metrics != nil {
		s.metrics.ToolInvocations.WithLabelValues(tool, outcome).Inc()
	}
}
