package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"beanmind/internal/dates"
	apperrors "beanmind/internal/errors"
	"beanmind/internal/ledger"
	"beanmind/internal/services"
)

// LedgerHandler exposes the journal that rules write to and budgets read.
type LedgerHandler struct {
	ledgerService services.LedgerServicer
	auditService  services.AuditServicer
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerService services.LedgerServicer, auditService services.AuditServicer) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, auditService: auditService}
}

// OpenAccountRequest represents the payload for opening a ledger account.
type OpenAccountRequest struct {
	Name       string   `json:"name" binding:"required,account_name" example:"Assets:Bank:Checking"`
	OpenDate   string   `json:"open_date" binding:"required,date_only" example:"2025-01-01"`
	Currencies []string `json:"currencies" binding:"omitempty,dive,commodity"`
}

// CloseAccountRequest represents the payload for closing a ledger account.
type CloseAccountRequest struct {
	Name      string `json:"name" binding:"required,account_name"`
	CloseDate string `json:"close_date" binding:"required,date_only" example:"2025-12-31"`
}

// PostingRequest is one leg of a ledger transaction.
type PostingRequest struct {
	Account  string          `json:"account" binding:"required,account_name"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"string" example:"-42.50"`
	Currency string          `json:"currency" binding:"required,commodity"`
}

// CreateLedgerTransactionRequest represents the payload for a manual journal entry.
type CreateLedgerTransactionRequest struct {
	Date        string           `json:"date" binding:"required,date_only" example:"2025-01-15"`
	Flag        string           `json:"flag" binding:"omitempty,oneof=* !"`
	Payee       string           `json:"payee" binding:"max=200"`
	Description string           `json:"description" binding:"required,max=500"`
	Tags        []string         `json:"tags"`
	Postings    []PostingRequest `json:"postings" binding:"required,min=2,dive"`
}

// OpenAccount handles opening a ledger account.
// @Summary     Open ledger account
// @Tags        ledger
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body OpenAccountRequest true "Account details"
// @Success     201 {object} models.LedgerAccount "Account opened"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Account already open"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /ledger/accounts [post]
func (h *LedgerHandler) OpenAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	openDate, err := parseDate("open_date", req.OpenDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.ledgerService.OpenAccount(c.Request.Context(), req.Name, openDate, req.Currencies)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, services.ResourceLedgerAccount, account.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "open_date": req.OpenDate})

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// GetAccounts handles listing ledger accounts.
// @Summary     List ledger accounts
// @Tags        ledger
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.LedgerAccount "Accounts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /ledger/accounts [get]
func (h *LedgerHandler) GetAccounts(c *gin.Context) {
	if _, err := getUserID(c); err != nil {
		respondWithError(c, err)
		return
	}

	accounts, err := h.ledgerService.ListAccounts(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// CloseAccount handles closing a ledger account.
// @Summary     Close ledger account
// @Description Close an account; postings dated on or after close_date are rejected
// @Tags        ledger
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CloseAccountRequest true "Account and close date"
// @Success     200 {object} models.LedgerAccount "Account closed"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     422 {object} ErrorResponse "Ledger rejected the close"
// @Router      /ledger/accounts/close [post]
func (h *LedgerHandler) CloseAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CloseAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	closeDate, err := parseDate("close_date", req.CloseDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.ledgerService.CloseAccount(c.Request.Context(), req.Name, closeDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionClose, services.ResourceLedgerAccount, account.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "close_date": req.CloseDate})

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// CreateTransaction handles appending a manual journal entry.
// @Summary     Create ledger transaction
// @Description Append a balanced transaction to the journal
// @Tags        ledger
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateLedgerTransactionRequest true "Transaction"
// @Success     201 {object} models.LedgerTransaction "Transaction recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     422 {object} ErrorResponse "Ledger rejected the transaction"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /ledger/transactions [post]
func (h *LedgerHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateLedgerTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn := ledger.Transaction{
		Date:        date,
		Flag:        req.Flag,
		Payee:       req.Payee,
		Description: req.Description,
		Tags:        req.Tags,
		Postings:    make([]ledger.Posting, 0, len(req.Postings)),
	}
	for _, p := range req.Postings {
		txn.Postings = append(txn.Postings, ledger.Posting{Account: p.Account, Amount: p.Amount, Currency: p.Currency})
	}

	created, err := h.ledgerService.CreateTransaction(c.Request.Context(), txn)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, services.ResourceLedgerTransaction, created.ID, c.ClientIP(),
		map[string]interface{}{"date": req.Date, "description": req.Description})

	c.JSON(http.StatusCreated, gin.H{"transaction": created})
}

// GetPostings handles querying postings of an account subtree.
// @Summary     Query postings
// @Description Postings of account and its descendants between from_date and to_date inclusive
// @Tags        ledger
// @Produce     json
// @Security    BearerAuth
// @Param       account   query string true "Account name, e.g. Expenses:Food"
// @Param       from_date query string true "First date (YYYY-MM-DD)"
// @Param       to_date   query string true "Last date (YYYY-MM-DD)"
// @Success     200 {array}  ledger.PostingRecord "Postings"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /ledger/postings [get]
func (h *LedgerHandler) GetPostings(c *gin.Context) {
	if _, err := getUserID(c); err != nil {
		respondWithError(c, err)
		return
	}

	account := c.Query("account")
	if !ledger.ValidAccountName(account) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "account must be a valid account name"))
		return
	}
	from, err := parseDate("from_date", c.Query("from_date"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	to, err := parseDate("to_date", c.Query("to_date"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	postings, err := h.ledgerService.QueryPostings(c.Request.Context(), account, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if postings == nil {
		postings = []ledger.PostingRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"account":   account,
		"from_date": dates.Format(from),
		"to_date":   dates.Format(to),
		"postings":  postings,
	})
}
