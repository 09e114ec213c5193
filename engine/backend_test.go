package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_Valid(t *testing.T) {
	assert.True(t, BackendGPU.Valid())
	assert.True(t, BackendCPU.Valid())
	assert.True(t, BackendHosted.Valid())
	assert.True(t, BackendMock.Valid())
	assert.False(t, Backend("tpu").Valid())
}

func TestBackend_Fallback(t *testing.T) {
	assert.Equal(t, BackendCPU, BackendGPU.Fallback())
	assert.Equal(t, Backend(""), BackendCPU.Fallback())
	assert.Equal(t, Backend(""), BackendHosted.Fallback())
}

func TestProbeHardware(t *testing.T) {
	info, err := ProbeHardware()
	require.NoError(t, err)

	assert.Greater(t, info.CPUCores, 0)
	assert.Greater(t, info.TotalMemoryMB, uint64(0))
	assert.True(t, info.RecommendedUse.Valid())
}

func TestProbeHardware_ForcedBackend(t *testing.T) {
	t.Setenv("INFERMESH_FORCE_BACKEND", "cpu")
	info, err := ProbeHardware()
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, info.RecommendedUse)

	t.Setenv("INFERMESH_FORCE_BACKEND", "quantum")
	_, err = ProbeHardware()
	assert.Error(t, err)
}
