package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/quota"
	"github.com/greenpoint-pos/kiosk/internal/service"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code           string `json:"code"`
	Detail         string `json:"detail,omitempty"`
	DistributionID string `json:"distribution_id,omitempty"`
}

// writeError maps domain errors onto stable JSON codes. A partial
// commit is the one 500 that carries structure: the UI must show the
// distribution id so staff can reconcile.
func writeError(w http.ResponseWriter, err error) {
	var pce *service.PartialCommitError
	if errors.As(err, &pce) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:           "PARTIAL_COMMIT",
			Detail:         pce.Error(),
			DistributionID: pce.DistributionID.String(),
		})
		return
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Detail: err.Error()})
	case errors.Is(err, errs.ErrBadTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "INVALID_TRANSITION", Detail: err.Error()})
	case errors.Is(err, errs.ErrScanInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "SCAN_IN_FLIGHT", Detail: err.Error()})
	case errors.Is(err, errs.ErrShortlistFull):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "SHORTLIST_FULL", Detail: err.Error()})
	case errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: "RATE_LIMITED", Detail: err.Error()})
	case errors.Is(err, errs.ErrScanTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Code: "SCAN_TIMEOUT", Detail: err.Error()})
	case errors.Is(err, errs.ErrReader):
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: "READER_ERROR", Detail: err.Error()})
	case errors.Is(err, errs.ErrVerificationFailed):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "VERIFICATION_FAILED", Detail: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Detail: err.Error()})
	}
}

type violationDTO struct {
	Code           string  `json:"code"`
	RemainingGrams float64 `json:"remaining_grams"`
}

type rejectedResponse struct {
	Accepted   bool           `json:"accepted"`
	Violations []violationDTO `json:"violations"`
}

// writeViolations reports a rejected add: HTTP 409 with every
// applicable reason code and the remaining headroom per mass rule.
func writeViolations(w http.ResponseWriter, vs []quota.Violation) {
	out := rejectedResponse{Violations: make([]violationDTO, 0, len(vs))}
	for _, v := range vs {
		out.Violations = append(out.Violations, violationDTO{
			Code:           v.Code.String(),
			RemainingGrams: v.RemainingGrams,
		})
	}
	writeJSON(w, http.StatusConflict, out)
}
