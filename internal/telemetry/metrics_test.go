package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())

	require.NotNil(t, m.ResolutionsTotal)
	require.NotNil(t, m.GrantsTotal)
	require.NotNil(t, m.APIKeysRevokedTotal)
	require.NotNil(t, m.TxRetriesTotal)
	require.NotNil(t, Tracer())
}
