package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relScopes() Scopes {
	return Scopes{TenantID: "t1", ProjectID: "p1", GraphID: "g1"}
}

func TestNewAgentRelation_InternalTarget(t *testing.T) {
	r, err := NewAgentRelation(relScopes(), "a1", "a2", "", RelationTransfer)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "t1", r.TenantID)
	assert.Equal(t, "g1", r.GraphID)
	assert.False(t, r.IsExternal())
}

func TestNewAgentRelation_ExternalTarget(t *testing.T) {
	r, err := NewAgentRelation(relScopes(), "a1", "", "ext1", RelationDelegate)
	require.NoError(t, err)
	assert.True(t, r.IsExternal())
}

func TestNewAgentRelation_BothTargets(t *testing.T) {
	_, err := NewAgentRelation(relScopes(), "a1", "a2", "ext1", RelationTransfer)
	assert.ErrorIs(t, err, ErrRelationTargetBoth)
}

func TestNewAgentRelation_NoTarget(t *testing.T) {
	_, err := NewAgentRelation(relScopes(), "a1", "", "", RelationTransfer)
	assert.ErrorIs(t, err, ErrRelationTargetNone)
}

func TestNewAgentRelation_BadType(t *testing.T) {
	_, err := NewAgentRelation(relScopes(), "a1", "a2", "", RelationType("escalate"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewAgentRelation_NoSource(t *testing.T) {
	_, err := NewAgentRelation(relScopes(), "", "a2", "", RelationTransfer)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
