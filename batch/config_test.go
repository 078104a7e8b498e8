package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/verdict/am"
)

func TestNewConfig(t *testing.T) {
	t.Run("nil uses defaults", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), NewConfig(nil))
	})

	t.Run("overrides", func(t *testing.T) {
		c := &am.Config{}
		c.Batch.SubBatchSize = 50
		c.Batch.AdmissionFloor = 3
		c.Batch.IntervalSeconds = 60
		c.Batch.InvalidErrorCodes = []string{"invalid_type", "invalid_json"}
		c.Batch.ResubmitInFlight = false
		c.OpenAI.Model = "other-model"
		c.Paths.Inputs = "/in"
		c.Collect.RequireComplete = true

		cfg := NewConfig(c)
		assert.Equal(t, 50, cfg.SubBatchSize)
		assert.Equal(t, 3, cfg.AdmissionFloor)
		assert.Equal(t, time.Minute, cfg.Interval)
		assert.Equal(t, []string{"invalid_type", "invalid_json"}, cfg.InvalidErrorCodes)
		assert.False(t, cfg.ResubmitInFlight)
		assert.Equal(t, "other-model", cfg.Model)
		assert.Equal(t, "/in", cfg.InputsDir)
		assert.True(t, cfg.RequireComplete)

		// Zero values keep defaults
		assert.Equal(t, 16, cfg.Workers)
		assert.Equal(t, "data/outputs", cfg.OutputsDir)
		assert.Equal(t, am.DefaultSystemPrompt, cfg.SystemPrompt)
	})
}
