package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/store/memory"
)

const sampleFixtures = `
rollup_configs:
  - id: rc-1
    tenant_id: tenant-1
    name: by-state
    version: 1
    dimensions: [state]
    measures:
      - name: total_tiv
        op: sum
        field: tiv
threshold_rules:
  - id: rule-1
    tenant_id: tenant-1
    name: high-flood-tiv
    metric: total_tiv
    operator: ">"
    value: 1000000
    severity: HIGH
    active: true
policy_packs:
  - id: pack-1
    tenant_id: tenant-1
    name: default
    versions:
      - id: pack-1-v1
        version_label: v1
        scoring_config:
          weights:
            flood: 0.5
`

func writeFixturesFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFixturesParsesYAML(t *testing.T) {
	path := writeFixturesFile(t, sampleFixtures)
	f, err := LoadFixtures(path)
	require.NoError(t, err)
	require.Len(t, f.RollupConfigs, 1)
	assert.Equal(t, "by-state", f.RollupConfigs[0].Name)
	require.Len(t, f.ThresholdRules, 1)
	assert.Equal(t, "high-flood-tiv", f.ThresholdRules[0].Name)
	require.Len(t, f.PolicyPacks, 1)
	require.Len(t, f.PolicyPacks[0].Versions, 1)
}

func TestSeedAppliesFixturesToMemoryStore(t *testing.T) {
	path := writeFixturesFile(t, sampleFixtures)
	f, err := LoadFixtures(path)
	require.NoError(t, err)

	stores := memory.New()
	require.NoError(t, Seed(context.Background(), stores, f))

	rules, err := stores.ListActiveRules(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "high-flood-tiv", rules[0].Name)

	pack, err := stores.GetPolicyPack(context.Background(), "tenant-1", "pack-1")
	require.NoError(t, err)
	assert.Equal(t, "default", pack.Name)
}

func TestLoadFixturesMissingFileReturnsError(t *testing.T) {
	_, err := LoadFixtures(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("EXPOSURE_TEST_STR", "hello")
	assert.Equal(t, "hello", GetEnv("EXPOSURE_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("EXPOSURE_TEST_STR_UNSET", "fallback"))

	t.Setenv("EXPOSURE_TEST_BOOL", "yes")
	assert.True(t, GetEnvBool("EXPOSURE_TEST_BOOL", false))

	t.Setenv("EXPOSURE_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("EXPOSURE_TEST_INT", 0))

	size, err := ParseByteSize("512MB")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), size)
}
