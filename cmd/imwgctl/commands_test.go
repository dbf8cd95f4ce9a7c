package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imwg-risk-server/internal/app"
	"github.com/imwg-risk-server/internal/audit"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/service"
	"github.com/imwg-risk-server/internal/setup"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyCommand_Text(t *testing.T) {
	out, err := execute(t, "classify", "--del17p", "positive", "--translocation", "negative", "--del1p32", "negative")
	require.NoError(t, err)

	assert.Contains(t, out, "Risk result: HIGH_RISK")
	assert.Contains(t, out, "High-risk criteria met: 1")
	assert.Contains(t, out, "Recommendations:")
}

func TestClassifyCommand_JSON(t *testing.T) {
	out, err := execute(t, "classify",
		"--del17p", "negative", "--translocation", "negative", "--del1p32", "negative",
		"--b2m", "4.5", "--creatinine", "0.9", "-o", "json")
	require.NoError(t, err)

	var report service.RiskReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, domain.STANDARD_RISK, report.RiskResult)
	assert.Equal(t, 0, report.TotalRiskFactors)
	assert.Contains(t, report.ClinicalInterpretation, "elevated but does not meet high-risk criteria")
}

func TestClassifyCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{
			name:     "missing markers",
			args:     []string{"classify", "--del17p", "positive"},
			contains: "High-risk translocation status is required",
		},
		{
			name:     "unpaired biomarker",
			args:     []string{"classify", "--del17p", "negative", "--translocation", "negative", "--del1p32", "negative", "--b2m", "6"},
			contains: "Creatinine value is required",
		},
		{
			name:     "unknown output",
			args:     []string{"classify", "--del17p", "negative", "--translocation", "negative", "--del1p32", "negative", "-o", "xml"},
			contains: "unsupported output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestAuditExportCommand(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = dataDir

	logger, _ := test.NewNullLogger()
	stack, err := app.NewLiteStack(cfg, app.WithLogger(logger))
	require.NoError(t, err)

	clinician := "Dr. Lindqvist"
	created, err := stack.Service.Create(context.Background(), &domain.CreateAssessmentRequest{
		Del17pTP53:         "negative",
		TranslocationCombo: "negative",
		Del1p32:            "positive",
	}, &clinician)
	require.NoError(t, err)
	_, err = stack.Service.Calculate(context.Background(), created.ID, &clinician)
	require.NoError(t, err)
	require.NoError(t, stack.Close())

	out, err := execute(t, "audit", "export", created.ID, "--data-dir", dataDir)
	require.NoError(t, err)

	var export audit.HistoryExport
	require.NoError(t, json.Unmarshal([]byte(out), &export))
	assert.Equal(t, created.ID, export.AssessmentID)
	assert.Equal(t, 2, export.Count)
	assert.Equal(t, domain.ActionCalculated, export.Entries[0].Action)
}

func TestAuditExportCommand_RequiresID(t *testing.T) {
	_, err := execute(t, "audit", "export")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "imwgctl 1.0.0\n", out)
}

func TestSetupCommands(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	out, err := execute(t, "setup", "claude-desktop", "--client-config", configPath, "--binary", "/opt/imwg/mcp-server", "--data-dir", "/srv/imwg")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered imwg-risk -> /opt/imwg/mcp-server")

	out, err = execute(t, "setup", "status", "--client-config", configPath)
	require.NoError(t, err)

	var status setup.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Registered)
	assert.Equal(t, "/srv/imwg", status.DataDir)
	assert.NotEmpty(t, status.Issues)
}
