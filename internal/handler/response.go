package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/qdsl"
	"github.com/e2eq/querycore/internal/qdsl/mongodb"
	"github.com/e2eq/querycore/internal/schema"
	"github.com/e2eq/querycore/internal/service"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Line    int      `json:"line,omitempty"`
	Column  int      `json:"column,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeQueryError maps a gateway error onto a status and error code.
func writeQueryError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var pe *qdsl.ParseError
	var fe *schema.FieldValidationError
	switch {
	case stderrors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  pe.Msg,
			Code:   "PARSE_ERROR",
			Line:   pe.Line,
			Column: pe.Column,
		})
	case stderrors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Query references unknown fields",
			Code:   "INVALID_FIELDS",
			Fields: fe.Errors,
		})
	case qdsl.ErrTypeMismatch.Is(err), qdsl.ErrUnresolvedVariable.Is(err), qdsl.ErrInvalidLiteral.Is(err):
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), "")
	case service.ErrInvalidParam.Is(err):
		writeError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), "")
	case schema.ErrUnknownEntity.Is(err):
		writeError(w, http.StatusNotFound, "TYPE_NOT_FOUND", "Root type not found", err.Error())
	case metadata.IsMetadataError(err), mongodb.ErrUnresolvedExpansion.Is(err), mongodb.ErrUnsupportedExpansion.Is(err):
		writeError(w, http.StatusUnprocessableEntity, "METADATA_ERROR", err.Error(), "")
	case service.ErrUnsupportedPlan.Is(err):
		writeError(w, http.StatusNotImplemented, "UNSUPPORTED_PLAN", err.Error(), "")
	case service.ErrNoStore.Is(err):
		writeError(w, http.StatusServiceUnavailable, "NO_STORE", err.Error(), "")
	default:
		log.WithError(err).Error("query failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Query failed", err.Error())
	}
}
