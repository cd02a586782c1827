package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/gigvault/escrow/internal/payment/domain"
)

type createPaymentRequest struct {
	ClientID  string `json:"client_id" binding:"required"`
	ProjectID string `json:"project_id" binding:"required"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

func (s *Server) CreateWalletPayment(c *gin.Context) {
	req, err := bindCreatePayment(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	txn, err := s.paymentSvc.CreateWalletPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

func (s *Server) CreateServicePaymentOrder(c *gin.Context) {
	req, err := bindCreatePayment(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.paymentSvc.CreateServicePaymentOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction":      result.Transaction,
		"gateway_order_id": result.GatewayOrderID,
		"amount":           result.Amount,
		"currency":         result.Currency,
		"gateway_key_id":   result.GatewayKeyID,
	})
}

func (s *Server) ProcessServicePayment(c *gin.Context) {
	var body verifyPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	txn, err := s.paymentSvc.ProcessServicePayment(c.Request.Context(), paymentdomain.VerifyPaymentRequest{
		GatewayOrderID:   body.GatewayOrderID,
		GatewayPaymentID: body.GatewayPaymentID,
		Signature:        body.Signature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	txn, err := s.paymentSvc.GetTransaction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

func bindCreatePayment(c *gin.Context) (paymentdomain.CreatePaymentRequest, error) {
	var body createPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return paymentdomain.CreatePaymentRequest{}, newValidationError("request", "invalid_request", "invalid request")
	}

	clientID, err := parseID(body.ClientID, "client_id")
	if err != nil {
		return paymentdomain.CreatePaymentRequest{}, err
	}
	projectID, err := parseID(body.ProjectID, "project_id")
	if err != nil {
		return paymentdomain.CreatePaymentRequest{}, err
	}

	return paymentdomain.CreatePaymentRequest{
		ClientID:  clientID,
		ProjectID: projectID,
	}, nil
}

func parseID(raw, field string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError(field, "invalid_id", "must be a valid id")
	}
	return id, nil
}
