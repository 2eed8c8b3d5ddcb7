package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrProviderError    = fmt.Errorf("provider error")
	ErrUnsupported      = fmt.Errorf("operation not supported")
)

// Sentinel errors for the domain layer.
var (
	ErrProjectNotFound       = fmt.Errorf("project not found")
	ErrGraphNotFound         = fmt.Errorf("agent graph not found")
	ErrAgentNotFound         = fmt.Errorf("agent not found")
	ErrExternalAgentNotFound = fmt.Errorf("external agent not found")
	ErrRelationNotFound      = fmt.Errorf("agent relation not found")
	ErrToolNotFound          = fmt.Errorf("tool not found")
	ErrFunctionNotFound      = fmt.Errorf("function not found")
	ErrComponentNotFound     = fmt.Errorf("component not found")
	ErrContextConfigNotFound = fmt.Errorf("context config not found")
	ErrCredentialNotFound    = fmt.Errorf("credential reference not found")
	ErrTaskNotFound          = fmt.Errorf("task not found")
	ErrMessageNotFound       = fmt.Errorf("message not found")
	ErrArtifactNotFound      = fmt.Errorf("ledger artifact not found")

	// Graph-structure validation errors. Thrown before any write.
	ErrGraphInvalid         = fmt.Errorf("graph structure invalid")
	ErrRelationTargetBoth   = fmt.Errorf("relation sets both internal and external target")
	ErrRelationTargetNone   = fmt.Errorf("relation sets neither internal nor external target")
	ErrRelationTargetUnknown = fmt.Errorf("relation target not declared in graph")
	ErrDefaultAgentUnknown  = fmt.Errorf("default agent not declared in graph")

	// Credential store errors.
	ErrStoreNotRegistered = fmt.Errorf("credential store not registered")
	ErrCredentialDenied   = fmt.Errorf("credential access denied")

	// Gateway errors.
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrScopeDenied = fmt.Errorf("request outside authorized tenant scope")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Graph.Create")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "graph", "credstore")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeUnsupported        ErrorCode = "UNSUPPORTED"
	CodeProjectNotFound    ErrorCode = "PROJECT_NOT_FOUND"
	CodeGraphNotFound      ErrorCode = "GRAPH_NOT_FOUND"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeRelationNotFound   ErrorCode = "RELATION_NOT_FOUND"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeCredentialNotFound ErrorCode = "CREDENTIAL_NOT_FOUND"
	CodeGraphInvalid       ErrorCode = "GRAPH_INVALID"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeScopeDenied        ErrorCode = "SCOPE_DENIED"
	CodeStoreNotRegistered ErrorCode = "STORE_NOT_REGISTERED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrInvalidInput:     CodeInvalidInput,
	ErrPermissionDenied: CodePermissionDenied,
	ErrProviderError:    CodeProviderError,
	ErrUnsupported:      CodeUnsupported,

	ErrProjectNotFound:       CodeProjectNotFound,
	ErrGraphNotFound:         CodeGraphNotFound,
	ErrAgentNotFound:         CodeAgentNotFound,
	ErrExternalAgentNotFound: CodeAgentNotFound,
	ErrRelationNotFound:      CodeRelationNotFound,
	ErrToolNotFound:          CodeToolNotFound,
	ErrFunctionNotFound:      CodeNotFound,
	ErrComponentNotFound:     CodeNotFound,
	ErrContextConfigNotFound: CodeNotFound,
	ErrCredentialNotFound:    CodeCredentialNotFound,
	ErrTaskNotFound:          CodeNotFound,
	ErrMessageNotFound:       CodeNotFound,
	ErrArtifactNotFound:      CodeNotFound,

	ErrGraphInvalid:          CodeGraphInvalid,
	ErrRelationTargetBoth:    CodeGraphInvalid,
	ErrRelationTargetNone:    CodeGraphInvalid,
	ErrRelationTargetUnknown: CodeGraphInvalid,
	ErrDefaultAgentUnknown:   CodeGraphInvalid,

	ErrStoreNotRegistered: CodeStoreNotRegistered,
	ErrCredentialDenied:   CodePermissionDenied,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrScopeDenied:        CodeScopeDenied,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"project":    CodeProjectNotFound,
		"graph":      CodeGraphNotFound,
		"agent":      CodeAgentNotFound,
		"tool":       CodeToolNotFound,
		"credential": CodeCredentialNotFound,
	},
	ErrInvalidInput: {
		"graph": CodeGraphInvalid,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
