//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRevocations_Redis(t *testing.T) {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	// Two sets over one client stand in for two replicas.
	a := NewRevocations(client, "")
	b := NewRevocations(client, "")

	revoked, err := b.IsRevoked(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, a.Revoke(ctx, "k1", time.Second))
	revoked, err = b.IsRevoked(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.Eventually(t, func() bool {
		revoked, err := b.IsRevoked(ctx, "k1")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}
