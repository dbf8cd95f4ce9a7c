// Package mcp exposes risk classification and assessments as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/metrics"
	"github.com/imwg-risk-server/internal/service"
)

// ServerName and ServerVersion identify the server to MCP clients.
const (
	ServerName    = "imwg-risk-mcp-server"
	ServerVersion = "v1.0.0"
)

// Server wraps the MCP SDK server and the assessment service behind it.
type Server struct {
	mcpServer *mcp.Server
	service   *service.AssessmentService
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers every tool.
func NewServer(svc *service.AssessmentService, m *metrics.Metrics, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		service:   svc,
		metrics:   m,
		logger:    logger,
	}
	s.registerTools()

	return s
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves MCP over the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("server", ServerName).Info("Starting MCP server")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolClassifyRisk,
		Description: "Classify a multiple myeloma genetic profile with the IMWG high-risk criteria without storing anything. Returns the verdict, matched criteria, clinical interpretation and recommendations.",
	}, s.handleClassifyRisk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolCreateAssessment,
		Description: "Create a DRAFT risk assessment for a patient. The three genetic markers are required; β2-microglobulin and creatinine must be given together.",
	}, s.handleCreateAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolCalculateAssessment,
		Description: "Run the risk calculation for a stored assessment, mark it COMPLETED and return the calculation snapshot.",
	}, s.handleCalculateAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolGetAssessment,
		Description: "Fetch a stored assessment by id.",
	}, s.handleGetAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolGetAssessmentHistory,
		Description: "Fetch the audit trail of a stored assessment, most recent first.",
	}, s.handleGetAssessmentHistory)

	s.logger.WithField("tool_count", len(toolNames)).Debug("Registered MCP tools")
}
