package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/kaptinlin/jsonschema"

	"agentmesh/internal/domain"
)

// HeaderValidationResult reports a headers payload checked against a
// context config's request-context schema.
type HeaderValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// compileSchema rejects context configs whose header schema is not
// itself a valid JSON schema.
func compileSchema(raw json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if _, err := compiler.Compile(raw); err != nil {
		return domain.NewDomainError("gateway.compileSchema", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// validateHeaders checks a request-headers object against the context
// config's schema.
func (s *Server) validateHeaders(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	cfg, err := s.deps.Store.ContextConfigs.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var headers map[string]any
	if err := decodeBody(r, &headers); err != nil {
		writeError(w, err)
		return
	}

	// No schema means no contract to violate.
	if len(cfg.HeadersSchema) == 0 {
		writeJSON(w, http.StatusOK, HeaderValidationResult{Valid: true})
		return
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(cfg.HeadersSchema)
	if err != nil {
		writeError(w, domain.NewDomainError("gateway.validateHeaders", domain.ErrInvalidInput, err.Error()))
		return
	}

	result := schema.Validate(headers)
	out := HeaderValidationResult{Valid: result.IsValid()}
	if !out.Valid {
		out.Error = result.Error()
	}
	writeJSON(w, http.StatusOK, out)
}
