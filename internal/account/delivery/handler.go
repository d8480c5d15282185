package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskmind-backend/internal/account/usecase"
)

// AccountHandler handles mailbox connection HTTP requests
type AccountHandler struct {
	accountUsecase *usecase.AccountUsecase
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountUsecase *usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{accountUsecase: accountUsecase}
}

// ConnectGmail links a Gmail account
// POST /api/accounts/gmail
func (h *AccountHandler) ConnectGmail(c *gin.Context) {
	userID := c.GetString("userID")

	var req usecase.GmailConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.accountUsecase.ConnectGmail(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conn)
}

// ConnectIMAP links an IMAP account
// POST /api/accounts/imap
func (h *AccountHandler) ConnectIMAP(c *gin.Context) {
	userID := c.GetString("userID")

	var req usecase.IMAPConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.accountUsecase.ConnectIMAP(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conn)
}

// ListConnections returns the user's linked accounts
// GET /api/accounts
func (h *AccountHandler) ListConnections(c *gin.Context) {
	userID := c.GetString("userID")

	conns, err := h.accountUsecase.ListConnections(userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

// Disconnect unlinks an account and halts its polling
// DELETE /api/accounts/:id
func (h *AccountHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")
	connectionID := c.Param("id")

	if err := h.accountUsecase.Disconnect(userID, connectionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account disconnected"})
}

// Reconnect restores an auth-failed gmail connection with fresh tokens
// POST /api/accounts/:id/reconnect
func (h *AccountHandler) Reconnect(c *gin.Context) {
	userID := c.GetString("userID")
	connectionID := c.Param("id")

	var req usecase.GmailConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.accountUsecase.Reconnect(c.Request.Context(), userID, connectionID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// AddPriorityContact registers an always-urgent sender
// POST /api/accounts/priority-contacts
func (h *AccountHandler) AddPriorityContact(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Email string `json:"email" binding:"required,email"`
		Label string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.accountUsecase.AddPriorityContact(userID, req.Email, req.Label)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contact)
}

// RemovePriorityContact deletes a priority sender
// DELETE /api/accounts/priority-contacts/:id
func (h *AccountHandler) RemovePriorityContact(c *gin.Context) {
	userID := c.GetString("userID")
	contactID := c.Param("id")

	if err := h.accountUsecase.RemovePriorityContact(userID, contactID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contact removed"})
}

// ListPriorityContacts returns the user's priority sender addresses
// GET /api/accounts/priority-contacts
func (h *AccountHandler) ListPriorityContacts(c *gin.Context) {
	userID := c.GetString("userID")

	emails, err := h.accountUsecase.ListPriorityContacts(userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contacts": emails})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
	case errors.Is(err, usecase.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	case errors.Is(err, usecase.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
