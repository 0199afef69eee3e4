package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/recovery/types"
)

func toolInfo(name string, capabilities ...string) ToolInfo {
	return ToolInfo{
		Name:         name,
		Version:      "1.0.0",
		InstanceID:   uuid.NewString(),
		Endpoint:     "localhost:50051",
		Capabilities: capabilities,
		RegisteredAt: time.Now(),
	}
}

func TestMemoryRegistryRegisterDiscover(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	a := toolInfo("curl", "get", "post")
	b := toolInfo("curl", "get")
	require.NoError(t, reg.Register(ctx, a))
	require.NoError(t, reg.Register(ctx, b))

	instances, err := reg.Discover(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	// Re-registering the same instance updates, not duplicates.
	a.Version = "1.1.0"
	require.NoError(t, reg.Register(ctx, a))
	instances, err = reg.Discover(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	require.NoError(t, reg.Deregister(ctx, b))
	instances, err = reg.Discover(ctx, "curl")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "1.1.0", instances[0].Version)

	// Deregistering an unknown instance is a no-op.
	assert.NoError(t, reg.Deregister(ctx, toolInfo("curl", "get")))
}

func TestMemoryRegistryDiscoverByCapability(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, toolInfo("curl", "get", "post")))
	require.NoError(t, reg.Register(ctx, toolInfo("wget", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("jq", "transform")))

	matched, err := reg.DiscoverByCapability(ctx, "get")
	require.NoError(t, err)
	assert.Len(t, matched, 2)

	matched, err = reg.DiscoverByCapability(ctx, "delete")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestMemoryRegistryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := reg.Watch(ctx, "curl")
	require.NoError(t, err)

	// Initial state arrives first.
	select {
	case state := <-ch:
		assert.Empty(t, state)
	case <-time.After(time.Second):
		t.Fatal("no initial watch state")
	}

	require.NoError(t, reg.Register(context.Background(), toolInfo("curl", "get")))
	select {
	case state := <-ch:
		assert.Len(t, state, 1)
	case <-time.After(time.Second):
		t.Fatal("no update after register")
	}
}

func TestMemoryRegistryClose(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())

	_, err := reg.Discover(context.Background(), "curl")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, reg.Register(context.Background(), toolInfo("curl")), ErrClosed)
}

func TestRecommenderRanksByRedundancy(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	// wget has two live instances, httpie one; the failing tool itself
	// must never be recommended.
	require.NoError(t, reg.Register(ctx, toolInfo("http-fetch", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("wget", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("wget", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("httpie", "get")))

	r := NewRecommender(reg, nil)
	alts, err := r.Recommend(ctx, types.Context{Tool: "http-fetch", Operation: "get"})
	require.NoError(t, err)

	require.Len(t, alts, 2)
	assert.Equal(t, "wget", alts[0].ToolName)
	assert.Equal(t, "httpie", alts[1].ToolName)
	assert.Greater(t, alts[0].Confidence, alts[1].Confidence)
	for _, alt := range alts {
		assert.NotEqual(t, "http-fetch", alt.ToolName)
		assert.NotEmpty(t, alt.Reasoning)
	}
}

func TestRecommenderDeterministicOrder(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, toolInfo("wget", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("httpie", "get")))
	require.NoError(t, reg.Register(ctx, toolInfo("aria2", "get")))

	r := NewRecommender(reg, nil)
	first, err := r.Recommend(ctx, types.Context{Tool: "http-fetch", Operation: "get"})
	require.NoError(t, err)
	second, err := r.Recommend(ctx, types.Context{Tool: "http-fetch", Operation: "get"})
	require.NoError(t, err)

	// Equal confidence falls back to name order.
	assert.Equal(t, first, second)
	assert.Equal(t, "aria2", first[0].ToolName)
}

func TestRecommenderWithoutRegistry(t *testing.T) {
	r := NewRecommender(nil, nil)
	_, err := r.Recommend(context.Background(), types.Context{Tool: "t", Operation: "op"})
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestNewClientFromEnvUnset(t *testing.T) {
	t.Setenv("RECOVERY_REGISTRY_ENDPOINTS", "")

	cli, err := NewClientFromEnv()
	assert.NoError(t, err)
	assert.Nil(t, cli)
}

func TestClientTLSValidation(t *testing.T) {
	cfg, err := clientTLS(nil)
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = clientTLS(&TLSConfig{Enabled: false})
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = clientTLS(&TLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = clientTLS(&TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem"})
	assert.Error(t, err)
}
