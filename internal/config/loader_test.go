package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DedupFuzzy, cfg.DedupStrategy)
	assert.Equal(t, 0.85, cfg.DedupThreshold)
	assert.Equal(t, 5, cfg.SectionGenerationBatchSize)
}

func TestValidateRejectsUnknownDedupStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.DedupStrategy = "bogus"
	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Defaults()
	cfg.DedupThreshold = 1.5
	require.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.AIRelevanceThreshold = -0.1
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownResearchStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.ExternalResearchStrategy = "bogus"
	require.Error(t, Validate(cfg))
}
