package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(5000), cfg.Policy.Split.RewardBps)
	assert.Equal(t, "admin", cfg.Policy.Resolver)
	assert.Equal(t, []string{"local-operator"}, cfg.Operators)
	assert.Equal(t, 30*time.Second, cfg.Locks.TTL)
}

func TestFromYAMLRejectsBadSplit(t *testing.T) {
	_, err := FromYAML([]byte(`
policy:
  slash_split: {reward_bps: 5000, protocol_bps: 4000, market_bps: 0}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "basis points")
}

func TestFromYAMLRejectsLiveness(t *testing.T) {
	for _, v := range []string{"59", "604801"} {
		_, err := FromYAML([]byte("policy:\n  liveness_seconds: " + v + "\n"))
		require.Error(t, err, v)
	}
	cfg, err := FromYAML([]byte("policy:\n  liveness_seconds: 604800\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(604800), cfg.Policy.LivenessSeconds)
}

func TestFromYAMLRedisNeedsAddr(t *testing.T) {
	_, err := FromYAML([]byte("locks:\n  backend: redis\n"))
	require.Error(t, err)
	cfg, err := FromYAML([]byte("locks:\n  backend: redis\n  redis_addr: localhost:6379\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Locks.Backend)
}

func TestFromYAMLUnknownResolver(t *testing.T) {
	_, err := FromYAML([]byte("policy:\n  resolver: chainlink\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin or assertion")
}

func TestFromYAMLRejectsEscrowAccounts(t *testing.T) {
	for _, doc := range []string{
		"policy:\n  protocol_treasury: escrow\n",
		"policy:\n  market_treasury: escrow\n",
		"oracle:\n  bond_account: escrow\n",
	} {
		_, err := FromYAML([]byte(doc))
		require.Error(t, err, doc)
		assert.Contains(t, err.Error(), "cannot be the escrow account", doc)
	}
	_, err := FromYAML([]byte("policy:\n  market_treasury: treasury:market\n"))
	require.NoError(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("alice")), 0o644))
	cfg, err = LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, cfg.Operators)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "min_stake: 10")
}
