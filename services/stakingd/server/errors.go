package server

import (
	"errors"
	"log/slog"
	"net/http"

	stakeerrors "stakegov/core/errors"
	"stakegov/native/common"
	"stakegov/observability/logging"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TxID    string `json:"tx_id,omitempty"`
}

// statusFor maps engine errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, stakeerrors.ErrReconciliationRequired):
		return http.StatusInternalServerError, "reconciliation_required"
	case errors.Is(err, stakeerrors.ErrLedgerSubmissionFailed):
		return http.StatusBadGateway, "ledger_unavailable"
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, "module_paused"
	case errors.Is(err, stakeerrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, stakeerrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, stakeerrors.ErrProposalClosed):
		return http.StatusConflict, "proposal_closed"
	case errors.Is(err, stakeerrors.ErrLockedFundsCannotUndelegate):
		return http.StatusConflict, "locked_funds"
	case errors.Is(err, stakeerrors.ErrPositionNotActive):
		return http.StatusConflict, "position_not_active"
	case errors.Is(err, stakeerrors.ErrInsufficientUnlockedBalance):
		return http.StatusUnprocessableEntity, "insufficient_unlocked_balance"
	case errors.Is(err, stakeerrors.ErrExceedsStakedAmount):
		return http.StatusUnprocessableEntity, "exceeds_staked_amount"
	case errors.Is(err, stakeerrors.ErrNothingToWithdraw):
		return http.StatusUnprocessableEntity, "nothing_to_withdraw"
	case errors.Is(err, stakeerrors.ErrNothingToClaim):
		return http.StatusUnprocessableEntity, "nothing_to_claim"
	case errors.Is(err, stakeerrors.ErrNoActiveValidators):
		return http.StatusUnprocessableEntity, "no_active_validators"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Code: code, Message: err.Error()}
	var recon *stakeerrors.ReconciliationError
	if errors.As(err, &recon) {
		body.TxID = recon.TxID
	}
	if status >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("route", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		}
		if body.TxID != "" {
			attrs = append(attrs, slog.String("tx", logging.Abbreviate(body.TxID)))
		}
		s.logger.ErrorContext(r.Context(), "request failed", attrs...)
		if code == "internal" {
			body.Message = http.StatusText(status)
		}
	}
	writeJSON(w, status, body)
}
