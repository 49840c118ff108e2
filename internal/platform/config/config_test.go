package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verigate/pkg/domain-errors"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("VERIGATE_ADDR", "")
	t.Setenv("VERIGATE_DB_PATH", "")
	t.Setenv("VERIGATE_LEIS", "")
	t.Setenv("VERIGATE_AUTH_TIMEOUT", "")
	t.Setenv("VERIGATE_SWEEP_INTERVAL", "")

	cfg := FromEnv()
	assert.Equal(t, ":7676", cfg.Addr)
	assert.Equal(t, "vdb", cfg.DBPath)
	assert.Empty(t, cfg.LEIs)
	assert.Equal(t, 600*time.Second, cfg.AuthTimeout)
	assert.Equal(t, time.Second, cfg.SweepInterval)
}

func TestFromEnv_ParsesLEIList(t *testing.T) {
	t.Setenv("VERIGATE_LEIS", "254900OPPU84GM83MG36, 875500ELOZEL05BVXV37 ,")
	cfg := FromEnv()
	assert.Equal(t, []string{"254900OPPU84GM83MG36", "875500ELOZEL05BVXV37"}, cfg.LEIs)
}

func TestValidate_RejectsEmptyAllowList(t *testing.T) {
	cfg := Server{AuthTimeout: time.Second, SweepInterval: time.Second}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func TestValidate_RejectsNonPositiveDurations(t *testing.T) {
	cfg := Server{LEIs: []string{"254900OPPU84GM83MG36"}, AuthTimeout: 0, SweepInterval: time.Second}
	require.Error(t, cfg.Validate())

	cfg = Server{LEIs: []string{"254900OPPU84GM83MG36"}, AuthTimeout: time.Second, SweepInterval: -time.Second}
	require.Error(t, cfg.Validate())
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := Server{LEIs: []string{"254900OPPU84GM83MG36"}, AuthTimeout: time.Minute, SweepInterval: time.Second}
	require.NoError(t, cfg.Validate())
}
