package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Graph.Create", ErrGraphNotFound, "graph 'support'")
	want := "Graph.Create: graph 'support': agent graph not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Tool.Get", ErrToolNotFound, "")
	want := "Tool.Get: tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Relation.Create", ErrRelationTargetBoth, "")
	if !errors.Is(err, ErrRelationTargetBoth) {
		t.Error("errors.Is should match ErrRelationTargetBoth")
	}
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	wrapped := WrapOp("Store.Get", ErrProjectNotFound)
	assert.ErrorIs(t, wrapped, ErrProjectNotFound)
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeGraphNotFound, ErrorCodeOf(ErrGraphNotFound))
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeGraphInvalid, ErrorCodeOf(ErrRelationTargetNone))
}

func TestErrorCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", ErrCredentialNotFound)
	assert.Equal(t, CodeCredentialNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	err := NewSubSystemError("graph", "Graph.Get", ErrNotFound, "g1")
	assert.Equal(t, CodeGraphNotFound, ErrorCodeOf(err))

	// Without a subsystem the category code wins.
	plain := NewDomainError("Store.Get", ErrNotFound, "")
	assert.Equal(t, CodeNotFound, ErrorCodeOf(plain))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("random")))
}
