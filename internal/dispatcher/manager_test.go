package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
)

func TestManager_ProcessCallbackUnknownSessionReturnsNotFound(t *testing.T) {
	mgr := NewManager(nil, nil)

	_, err := mgr.ProcessCallback(context.Background(), "missing-session", domain.NodeResult{})
	require.Error(t, err)
	var notFound *domain.SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_TypeIsDispatcher(t *testing.T) {
	mgr := NewManager(nil, nil)
	assert.Equal(t, domain.NodeTypeDispatcher, mgr.Type())
}

func TestManager_ExecuteRejectsUnknownDispatcherType(t *testing.T) {
	mgr := NewManager(nil, nil)
	node := &domain.Node{ID: "d1", Type: domain.NodeTypeDispatcher, Config: map[string]any{"dispatcherType": "bogus"}}

	_, err := mgr.Execute(context.Background(), node, map[string]string{}, map[string]any{}, map[string]domain.NodeResult{})
	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
