package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Ref   string `json:"ref,omitempty"`
	Check int    `json:"check,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

var (
	notFound = []error{
		ledger.ErrAccountNotFound,
		ledger.ErrEntryNotFound,
		ledger.ErrBankTxnNotFound,
		ledger.ErrMovementNotFound,
	}
	conflict = []error{
		ledger.ErrAccountExists,
		ledger.ErrAccountInactive,
		ledger.ErrAccountCodesExhausted,
		ledger.ErrPeriodLocked,
		ledger.ErrInvalidStatus,
		ledger.ErrAlreadyMatched,
		ledger.ErrNumberingConflict,
	}
	badRequest = []error{
		ledger.ErrInvalidAccountCode,
		ledger.ErrInvalidClassification,
		ledger.ErrCodeClassMismatch,
		ledger.ErrEmptyAccountName,
		ledger.ErrUnknownVoucherType,
		ledger.ErrInvalidDate,
		ledger.ErrInvalidFinancialYear,
		ledger.ErrInvalidBankTxn,
		ledger.ErrAmountOutOfRange,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func mapError(err error) int {
	var ve *ledger.ValidationError
	var iv *ledger.InvariantViolation
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &iv), errors.Is(err, ledger.ErrBooksHalted):
		return http.StatusServiceUnavailable
	case isAny(err, notFound):
		return http.StatusNotFound
	case isAny(err, conflict):
		return http.StatusConflict
	case isAny(err, badRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err to the client. Anything that maps to 500 is reported by
// reference only; the cause goes to the log and the audit trail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapError(err)
	resp := errorResponse{Error: err.Error()}

	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		resp.Check = ve.Check
	}
	var ie *ledger.InternalError
	switch {
	case errors.As(err, &ie):
		resp.Ref = ie.Ref
	case status == http.StatusInternalServerError:
		ref := uuid.NewString()
		s.log.Error("request failed", "op", op, "ref", ref, "err", err, "request_id", reqID(r))
		if auditErr := s.store.Audit(context.WithoutCancel(r.Context()), store.AuditEntry{
			Action: op + ".error", Ref: ref, Detail: err.Error(),
		}); auditErr != nil {
			s.log.Error("audit write failed", "ref", ref, "err", auditErr)
		}
		resp = errorResponse{Error: fmt.Sprintf("internal error (ref %s)", ref), Ref: ref}
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v and checks its validate tags.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ledger.ValidationError{Reason: "invalid JSON: " + err.Error(), Err: errBadRequest}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return &ledger.ValidationError{Reason: strings.Join(msgs, "; "), Err: errBadRequest}
		}
		return &ledger.ValidationError{Reason: err.Error(), Err: errBadRequest}
	}
	return nil
}

var errBadRequest = errors.New("bad request")

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date like 2024-06-05"
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func reqID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// actor names who made the request; the CLI and TUI send X-Actor.
func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "api"
}

func codeParam(r *http.Request) (int, error) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ledger.ErrInvalidAccountCode, chi.URLParam(r, "code"))
	}
	return code, nil
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDate(v)
}

func intQuery(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ledger.ValidationError{Reason: fmt.Sprintf("%s must be a number", name), Err: errBadRequest}
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}
