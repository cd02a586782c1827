package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	payoutdomain "github.com/gigvault/escrow/internal/payout/domain"
)

type releasePaymentRequest struct {
	AdminID string `json:"admin_id"`
}

func (s *Server) ReleasePayment(c *gin.Context) {
	transactionID, err := parseID(c.Param("transactionId"), "transaction_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body releasePaymentRequest
	_ = c.ShouldBindJSON(&body)
	var adminID snowflake.ID
	if body.AdminID != "" {
		adminID, err = parseID(body.AdminID, "admin_id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	payout, err := s.payoutSvc.ReleasePayment(c.Request.Context(), payoutdomain.ReleaseRequest{
		TransactionID: transactionID,
		AdminID:       adminID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout": payout})
}

func (s *Server) GetPayout(c *gin.Context) {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payout, err := s.payoutSvc.GetPayout(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout": payout})
}

func (s *Server) ListFreelancerPayouts(c *gin.Context) {
	freelancerID, err := parseID(c.Param("id"), "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "must be an integer"))
			return
		}
		limit = parsed
	}

	payouts, err := s.payoutSvc.ListFreelancerPayouts(c.Request.Context(), freelancerID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}
