package gateway

import (
	"encoding/json"
	"net/http"

	"agentmesh/internal/domain"
)

// apiError is the JSON error envelope returned on every failure.
type apiError struct {
	Error struct {
		Code    domain.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	var body apiError
	body.Error.Code = code
	body.Error.Message = err.Error()
	writeJSON(w, httpStatus(code), body)
}

func httpStatus(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound, domain.CodeProjectNotFound, domain.CodeGraphNotFound,
		domain.CodeAgentNotFound, domain.CodeRelationNotFound, domain.CodeToolNotFound,
		domain.CodeCredentialNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicate:
		return http.StatusConflict
	case domain.CodeInvalidInput, domain.CodeGraphInvalid:
		return http.StatusBadRequest
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodePermissionDenied, domain.CodeScopeDenied:
		return http.StatusForbidden
	case domain.CodeUnsupported:
		return http.StatusNotImplemented
	case domain.CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
