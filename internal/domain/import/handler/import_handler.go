// Package handler is a thin JSON shim over the import service. Auth, sessions
// and the full accounting CRUD surface live outside this module; these
// endpoints exist so the import flow can run end to end.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	importservice "github.com/ledgerkeep/ledgerkeep/internal/domain/import/service"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

// DefaultMaxUploadBytes caps statement uploads at 5MB.
const DefaultMaxUploadBytes = 5 << 20

// ImportAPI is the slice of the import service the handler calls.
type ImportAPI interface {
	Upload(ctx context.Context, userID, bankAccountID uuid.UUID, filename string, data []byte) (*importservice.UploadResult, error)
	Commit(ctx context.Context, input importservice.CommitInput) ([]*ledger.Transaction, error)
}

// AccountLister backs the fuzzy account picker.
type AccountLister interface {
	ListActive(ctx context.Context) ([]ledger.Account, error)
}

// ImportHandler handles statement upload and commit requests.
type ImportHandler struct {
	importSvc      ImportAPI
	accounts       AccountLister
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(importSvc ImportAPI, accounts AccountLister, maxUploadBytes int64, logger *slog.Logger) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ImportHandler{
		importSvc:      importSvc,
		accounts:       accounts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Register mounts the import routes on the mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/imports", h.Upload)
	mux.HandleFunc("POST /v1/imports/commit", h.Commit)
	mux.HandleFunc("GET /v1/accounts/search", h.SearchAccounts)
}

type candidateResponse struct {
	Line                 int        `json:"line"`
	Date                 string     `json:"date"`
	Description          string     `json:"description"`
	Amount               string     `json:"amount"`
	Reference            string     `json:"reference,omitempty"`
	SuggestedAccountID   *uuid.UUID `json:"suggestedAccountId"`
	SuggestedAccountName string     `json:"suggestedAccountName"`
	Confidence           float64    `json:"confidence"`
	Reason               string     `json:"reason"`
}

type rowErrorResponse struct {
	Line  int               `json:"line"`
	Error string            `json:"error"`
	Data  map[string]string `json:"data,omitempty"`
}

type uploadResponse struct {
	BatchID      uuid.UUID           `json:"batchId"`
	Transactions []candidateResponse `json:"transactions"`
	Errors       []rowErrorResponse  `json:"errors"`
	Summary      struct {
		Total  int `json:"total"`
		Errors int `json:"errors"`
	} `json:"summary"`
}

// Upload accepts a multipart statement file plus the target bank account.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.error(w, http.StatusRequestEntityTooLarge, "file too large or malformed form")
		return
	}

	bankAccountID, err := uuid.Parse(r.FormValue("bank_account_id"))
	if err != nil {
		h.error(w, http.StatusBadRequest, "invalid bank_account_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.error(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	result, err := h.importSvc.Upload(r.Context(), userID, bankAccountID, header.Filename, data)
	if err != nil {
		h.logger.Error("upload failed", slog.Any("error", err))
		h.error(w, http.StatusUnprocessableEntity, "failed to parse statement file")
		return
	}

	resp := uploadResponse{
		BatchID:      result.BatchID,
		Transactions: make([]candidateResponse, 0, len(result.Transactions)),
		Errors:       make([]rowErrorResponse, 0, len(result.Errors)),
	}
	resp.Summary.Total = result.Summary.Total
	resp.Summary.Errors = result.Summary.Errors
	for _, c := range result.Transactions {
		resp.Transactions = append(resp.Transactions, candidateResponse{
			Line:                 c.Line,
			Date:                 c.DateString(),
			Description:          c.Description,
			Amount:               c.Amount.String(),
			Reference:            c.Reference,
			SuggestedAccountID:   c.SuggestedAccountID,
			SuggestedAccountName: c.SuggestedAccountName,
			Confidence:           c.Confidence,
			Reason:               c.Reason,
		})
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, rowErrorResponse{Line: e.Line, Error: e.Err.Error(), Data: e.Raw})
	}

	h.json(w, http.StatusOK, resp)
}

type commitItemRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	AccountID   *uuid.UUID      `json:"accountId"`
}

type commitRequest struct {
	BatchID       *uuid.UUID          `json:"batchId"`
	BankAccountID uuid.UUID           `json:"bankAccountId"`
	Transactions  []commitItemRequest `json:"transactions"`
}

type commitResponse struct {
	Count        int                   `json:"count"`
	Transactions []transactionResponse `json:"transactions"`
}

type transactionResponse struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
}

// Commit posts the confirmed items. Items the user skipped (no account
// chosen) are dropped here, before the all-or-nothing committer runs.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUploadBytes)).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BankAccountID == uuid.Nil {
		h.error(w, http.StatusBadRequest, "bankAccountId is required")
		return
	}

	input := importservice.CommitInput{
		BatchID:       req.BatchID,
		UserID:        userID,
		BankAccountID: req.BankAccountID,
	}
	for _, item := range req.Transactions {
		if item.AccountID == nil {
			continue // skipped by the user
		}
		date, err := time.Parse("2006-01-02", item.Date)
		if err != nil {
			h.error(w, http.StatusBadRequest, "invalid transaction date: "+item.Date)
			return
		}
		input.Items = append(input.Items, importservice.CommitItem{
			Date:        date,
			Description: item.Description,
			Amount:      item.Amount,
			Reference:   item.Reference,
			AccountID:   item.AccountID,
		})
	}

	created, err := h.importSvc.Commit(r.Context(), input)
	if err != nil {
		if errors.Is(err, importservice.ErrMissingAccountSelection) {
			h.error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("commit failed", slog.Any("error", err))
		h.error(w, http.StatusInternalServerError, "failed to commit import")
		return
	}

	resp := commitResponse{
		Count:        len(created),
		Transactions: make([]transactionResponse, 0, len(created)),
	}
	for _, txn := range created {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:          txn.ID,
			Date:        txn.Date.Format("2006-01-02"),
			Description: txn.Description,
			Reference:   txn.Reference,
			Type:        string(txn.Type),
			Status:      string(txn.Status),
		})
	}

	h.json(w, http.StatusOK, resp)
}

type accountResponse struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

// SearchAccounts fuzzy-matches active accounts by name for the account picker.
func (h *ImportHandler) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.error(w, http.StatusBadRequest, "q is required")
		return
	}

	accounts, err := h.accounts.ListActive(r.Context())
	if err != nil {
		h.logger.Error("account lookup failed", slog.Any("error", err))
		h.error(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	matched := ledger.SearchAccounts(accounts, query, 10)
	resp := make([]accountResponse, 0, len(matched))
	for _, a := range matched {
		resp = append(resp, accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: string(a.Type)})
	}

	h.json(w, http.StatusOK, resp)
}

// userID resolves the caller. Authentication is out of scope; the identity
// arrives pre-verified from the gateway in a header.
func (h *ImportHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		h.error(w, http.StatusUnauthorized, "missing or invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ImportHandler) json(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *ImportHandler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, map[string]string{"error": message})
}
