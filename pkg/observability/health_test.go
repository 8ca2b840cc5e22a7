package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRegistry_Check(t *testing.T) {
	registry := NewHealthRegistry()

	registry.Register("database", DatabaseHealthChecker(func(_ context.Context) error {
		return nil
	}))
	registry.Register("redis", RedisHealthChecker(func(_ context.Context) error {
		return errors.New("connection refused")
	}))

	results := registry.Check(context.Background())
	require.Len(t, results, 2)

	assert.Equal(t, HealthStatusHealthy, results["database"].Status)
	assert.Equal(t, HealthStatusDegraded, results["redis"].Status)
	assert.Equal(t, HealthStatusDegraded, registry.OverallStatus())
}

func TestHealthRegistry_UnhealthyDominates(t *testing.T) {
	registry := NewHealthRegistry()

	registry.Register("database", DatabaseHealthChecker(func(_ context.Context) error {
		return errors.New("no such host")
	}))
	registry.Register("rabbitmq", RabbitMQHealthChecker(func(_ context.Context) error {
		return errors.New("connection refused")
	}))

	registry.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, registry.OverallStatus())
}

func TestHealthRegistry_OverallHealthSerializes(t *testing.T) {
	registry := NewHealthRegistry()
	registry.Register("database", DatabaseHealthChecker(func(_ context.Context) error {
		return nil
	}))

	health := registry.GetOverallHealth(context.Background())
	assert.Equal(t, HealthStatusHealthy, health.Status)
	require.Contains(t, health.Checks, "database")

	body, err := health.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestHealthRegistry_EmptyIsHealthy(t *testing.T) {
	registry := NewHealthRegistry()
	assert.Equal(t, HealthStatusHealthy, registry.OverallStatus())
}
