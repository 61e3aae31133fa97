package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/claimdesk/expense-ledger/internal/api/response"
	"github.com/claimdesk/expense-ledger/internal/domain/authz"
	"github.com/claimdesk/expense-ledger/internal/domain/errors"
	"github.com/claimdesk/expense-ledger/internal/domain/ledger"
)

// LedgerHandler exposes the ledger commands over HTTP. Dispatch identifiers
// are resolved here, once, into typed requests; the core never parses
// free-form strings. The actor and their capabilities arrive in headers
// resolved by the surrounding platform.
type LedgerHandler struct {
	service *ledger.Service
	logger  *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(service *ledger.Service, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger,
	}
}

// Register attaches the ledger routes to the mux.
func (h *LedgerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /entries", h.Submit)
	mux.HandleFunc("POST /entries/approve", h.Approve)
	mux.HandleFunc("POST /entries/modify", h.Modify)
	mux.HandleFunc("POST /entries/delete", h.Delete)
	mux.HandleFunc("GET /entries", h.GetDay)
	mux.HandleFunc("GET /export", h.Export)
	mux.HandleFunc("POST /rebuild", h.Rebuild)
}

// Submit handles POST /entries
func (h *LedgerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ledger.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, errors.NewValidationError("invalid request body"))
		return
	}
	if req.Requester == "" {
		req.Requester = r.Header.Get("X-Actor")
	}

	entry, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusCreated, entry)
}

// transitionBody is the shared body shape of the approve/modify/delete routes.
type transitionBody struct {
	TenantID string              `json:"tenantId"`
	StoreID  string              `json:"storeId"`
	Date     string              `json:"date"`
	EntryID  string              `json:"entryId"`
	Fields   ledger.ModifyFields `json:"fields"`
}

// Approve handles POST /entries/approve
func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, _, err := h.decodeTransition(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	entry, err := h.service.Approve(r.Context(), req)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, entry)
}

// Modify handles POST /entries/modify
func (h *LedgerHandler) Modify(w http.ResponseWriter, r *http.Request) {
	req, fields, err := h.decodeTransition(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	entry, err := h.service.Modify(r.Context(), req, fields)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, entry)
}

// Delete handles POST /entries/delete
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, _, err := h.decodeTransition(r)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	entry, err := h.service.Delete(r.Context(), req)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, entry)
}

// GetDay handles GET /entries. With entryId it returns one entry, otherwise
// the full daily document.
func (h *LedgerHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, storeID, date := q.Get("tenantId"), q.Get("storeId"), q.Get("date")
	if tenantID == "" || storeID == "" || date == "" {
		response.WriteError(w, errors.NewValidationError("tenantId, storeId and date are required"))
		return
	}

	if entryID := q.Get("entryId"); entryID != "" {
		entry, err := h.service.GetEntry(r.Context(), tenantID, storeID, date, entryID)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, http.StatusOK, entry)
		return
	}

	daily, err := h.service.GetDay(r.Context(), tenantID, storeID, date)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, daily)
}

// Export handles GET /export. format=csv streams the file; the default is a
// JSON body with rows and file name.
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, storeID := q.Get("tenantId"), q.Get("storeId")
	granularity := ledger.Granularity(q.Get("granularity"))
	period := q.Get("period")
	if tenantID == "" || storeID == "" || period == "" {
		response.WriteError(w, errors.NewValidationError("tenantId, storeId and period are required"))
		return
	}

	export, err := h.service.Export(r.Context(), tenantID, storeID, granularity, period)
	if err != nil {
		response.WriteError(w, err)
		return
	}

	if q.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
		cw := csv.NewWriter(w)
		cw.Write(export.Header)
		for _, row := range export.Rows {
			cw.Write(row)
		}
		cw.Flush()
		return
	}

	response.WriteSuccess(w, http.StatusOK, map[string]any{
		"fileName": export.FileName,
		"header":   export.Header,
		"rows":     export.Rows,
	})
}

// rebuildBody selects which rollup to recompute from its source documents.
type rebuildBody struct {
	TenantID string `json:"tenantId"`
	StoreID  string `json:"storeId"`
	Month    string `json:"month,omitempty"` // YYYY-MM
	Year     string `json:"year,omitempty"`  // YYYY
}

// Rebuild handles POST /rebuild
func (h *LedgerHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var body rebuildBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.WriteError(w, errors.NewValidationError("invalid request body"))
		return
	}
	if body.TenantID == "" || body.StoreID == "" {
		response.WriteError(w, errors.NewValidationError("tenantId and storeId are required"))
		return
	}

	switch {
	case body.Month != "":
		monthly, err := h.service.RebuildMonth(r.Context(), body.TenantID, body.StoreID, body.Month)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, http.StatusOK, monthly)
	case body.Year != "":
		yearly, err := h.service.RebuildYear(r.Context(), body.TenantID, body.StoreID, body.Year)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, http.StatusOK, yearly)
	default:
		response.WriteError(w, errors.NewValidationError("month or year is required"))
	}
}

func (h *LedgerHandler) decodeTransition(r *http.Request) (*ledger.TransitionRequest, ledger.ModifyFields, error) {
	var body transitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, ledger.ModifyFields{}, errors.NewValidationError("invalid request body")
	}
	if body.TenantID == "" || body.StoreID == "" || body.Date == "" || body.EntryID == "" {
		return nil, ledger.ModifyFields{}, errors.NewValidationError("tenantId, storeId, date and entryId are required")
	}
	return &ledger.TransitionRequest{
		TenantID: body.TenantID,
		StoreID:  body.StoreID,
		Date:     body.Date,
		EntryID:  body.EntryID,
		Subject:  subjectFromRequest(r),
	}, body.Fields, nil
}

// subjectFromRequest reads the acting user and their resolved capabilities
// from the headers the surrounding platform sets.
func subjectFromRequest(r *http.Request) authz.Subject {
	subject := authz.Subject{Actor: r.Header.Get("X-Actor")}
	for _, raw := range strings.Split(r.Header.Get("X-Capabilities"), ",") {
		if c := strings.TrimSpace(raw); c != "" {
			subject.Capabilities = append(subject.Capabilities, authz.Capability(c))
		}
	}
	return subject
}
