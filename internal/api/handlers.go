package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/middleware"
)

// performedByHeader optionally names the clinician behind a change.
const performedByHeader = "X-Performed-By"

const deletedMessage = "Assessment deleted successfully"

// listQuery holds the listing query parameters.
type listQuery struct {
	Skip          int    `form:"skip,default=0" binding:"min=0"`
	Limit         int    `form:"limit,default=100" binding:"min=1"`
	PatientID     string `form:"patient_id"`
	PhysicianName string `form:"physician_name"`
	RiskResult    string `form:"risk_result" binding:"omitempty,oneof=HIGH_RISK STANDARD_RISK"`
	Status        string `form:"status" binding:"omitempty,oneof=DRAFT COMPLETED"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "IMWG Risk Calculator API",
		"version": Version,
	})
}

// handleHealth always answers 200; the payload carries the state.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Health(c.Request.Context()))
}

func (s *Server) handleCreateAssessment(c *gin.Context) {
	var req domain.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindingError(c, err)
		return
	}

	assessment, err := s.service.Create(c.Request.Context(), &req, performedBy(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleListAssessments(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeBindingError(c, err)
		return
	}

	assessments, err := s.service.List(c.Request.Context(), domain.AssessmentFilter{
		PatientID:     q.PatientID,
		PhysicianName: q.PhysicianName,
		RiskResult:    domain.RiskResult(q.RiskResult),
		Status:        domain.AssessmentStatus(q.Status),
		Skip:          q.Skip,
		Limit:         q.Limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessments)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	assessment, err := s.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleUpdateAssessment(c *gin.Context) {
	var req domain.UpdateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindingError(c, err)
		return
	}

	assessment, err := s.service.Update(c.Request.Context(), c.Param("id"), &req, performedBy(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleDeleteAssessment(c *gin.Context) {
	if err := s.service.Delete(c.Request.Context(), c.Param("id"), performedBy(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": deletedMessage})
}

func (s *Server) handleCalculate(c *gin.Context) {
	calc, err := s.service.Calculate(c.Request.Context(), c.Param("id"), performedBy(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

func (s *Server) handleHistory(c *gin.Context) {
	entries, err := s.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleCalculations(c *gin.Context) {
	calcs, err := s.service.Calculations(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, calcs)
}

// writeError maps service errors onto status codes. Internal errors are
// logged and replaced by a generic body.
func (s *Server) writeError(c *gin.Context, err error) {
	correlationID := c.GetString(middleware.CorrelationIDKey)

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(verr.Message, verr.Details, correlationID))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.MsgNotFound, nil, correlationID))
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, domain.NewAPIError(domain.MsgVersionConflict, nil, correlationID))
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, domain.NewAPIError(domain.MsgRequestTimeout, nil, correlationID))
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"path":           c.Request.URL.Path,
			"error":          err,
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.MsgInternalServer, nil, correlationID))
	}
}

// writeBindingError reports a malformed body or query string.
func (s *Server) writeBindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.MsgSchemaInvalid, bindingDetails(err), c.GetString(middleware.CorrelationIDKey)))
}

func bindingDetails(err error) []string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s failed the '%s' check", fe.Field(), fe.Tag()))
		}
		return details
	}
	return []string{err.Error()}
}

func performedBy(c *gin.Context) *string {
	if name := c.GetHeader(performedByHeader); name != "" {
		return &name
	}
	return nil
}
