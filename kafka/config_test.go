package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	// At least one seed broker is required.
	assert.Error(t, cfg.Validate())

	cfg.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "kmirror", cfg.ClientID)

	t.Run("invalid sasl mechanism", func(t *testing.T) {
		cfg := cfg
		cfg.SASL.Enabled = true
		cfg.SASL.Mechanism = "DIGEST-MD5"
		assert.Error(t, cfg.Validate())
	})

	t.Run("disabled sasl skips mechanism check", func(t *testing.T) {
		cfg := cfg
		cfg.SASL.Enabled = false
		cfg.SASL.Mechanism = "DIGEST-MD5"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("conflicting tls ca sources", func(t *testing.T) {
		cfg := cfg
		cfg.TLS.Enabled = true
		cfg.TLS.Ca = "inline pem"
		cfg.TLS.CaFilepath = "/etc/ssl/ca.pem"
		assert.Error(t, cfg.Validate())
	})
}
