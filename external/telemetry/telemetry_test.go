package telemetry

import (
	"context"
	"testing"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), &config.Config{ServiceName: "multilingo"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_WithEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), &config.Config{
		ServiceName:  "multilingo",
		Env:          "development",
		OTLPEndpoint: "127.0.0.1:4317",
	})
	require.NoError(t, err)
	// Nothing was recorded, so nothing needs to reach the collector.
	assert.NoError(t, shutdown(context.Background()))
}
