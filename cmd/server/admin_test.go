package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	"github.com/mir00r/split-router/internal/store"
)

func TestRunKey(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runKey(&out, []string{"shop.example.com:8080"}))
	assert.Equal(t, "Key: shop_example_com\nCookie: sr_variant_shop_example_com\n", out.String())

	assert.Error(t, runKey(&out, nil))
}

func TestRunSetThenGet(t *testing.T) {
	mem := store.NewMemoryStore()
	backend := &store.Backend{Name: config.BackendMemory, Reader: mem, Writer: mem}
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runSet(ctx, &out, backend, []string{"shop.example.com", "https://a", "https://b", "0.2"}))
	assert.Contains(t, out.String(), "Stored shop_example_com")

	out.Reset()
	require.NoError(t, runGet(ctx, &out, backend, []string{"shop.example.com"}))
	assert.JSONEq(t, `{"urlA":"https://a","urlB":"https://b","split":0.2}`, out.String())

	require.NoError(t, runSet(ctx, &out, backend, []string{"b.com", "https://a", "https://b"}))
	raw, err := mem.Get(ctx, "b_com")
	require.NoError(t, err)
	cfg, err := domain.DecodeConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Split)

	err = runGet(ctx, &out, backend, []string{"missing.com"})
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestAdminCommandsShareKeyDerivation(t *testing.T) {
	mem := store.NewMemoryStore()
	backend := &store.Backend{Name: config.BackendMemory, Reader: mem, Writer: mem}
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runSet(ctx, &out, backend, []string{"shop.example.com:8080", "https://a", "https://b"}))

	_, err := mem.Get(ctx, "shop_example_com")
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, runGet(ctx, &out, backend, []string{"shop.example.com:443"}))
	assert.Contains(t, out.String(), `"urlA":"https://a"`)

	out.Reset()
	require.NoError(t, runKey(&out, []string{"shop.example.com:443"}))
	assert.Contains(t, out.String(), "Key: shop_example_com\n")
}

func TestRunSetReadOnlyBackend(t *testing.T) {
	backend := &store.Backend{Name: config.BackendEdgeConfig, Reader: store.NewMemoryStore()}
	err := runSet(context.Background(), &bytes.Buffer{}, backend, []string{"a.com", "https://a", "https://b"})
	assert.Error(t, err)
}

func TestRunAdminCommand(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SR_STORE_BACKEND", "memory")

	var out bytes.Buffer
	require.NoError(t, runAdminCommand(&out, "validate-config", nil))
	assert.Contains(t, out.String(), "Store backend: memory")

	assert.Error(t, runAdminCommand(&out, "migrate", nil))
}

func TestAdminArgs(t *testing.T) {
	assert.Equal(t, []string{"key", "a.com"}, adminArgs([]string{"split-router", "-admin", "key", "a.com"}))
	assert.Empty(t, adminArgs([]string{"split-router"}))
}

func TestGetPort(t *testing.T) {
	t.Setenv("PORT", "9000")
	assert.Equal(t, 9000, getPort(8080))

	t.Setenv("PORT", "not-a-port")
	assert.Equal(t, 8080, getPort(8080))
}
