package app

import (
	"context"
	"testing"
	"time"

	"github.com/NasaVasa/pricealert/internal/config"
	"github.com/NasaVasa/pricealert/internal/infra/cache"
	"github.com/NasaVasa/pricealert/internal/usecase"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPriceCache(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	memory := newPriceCache(ctx, config.Config{PriceCacheTTL: time.Minute}, logger)
	require.IsType(t, &cache.MemoryCache{}, memory)

	server := miniredis.RunT(t)
	redisBacked := newPriceCache(ctx, config.Config{RedisAddr: server.Addr(), PriceCacheTTL: time.Minute}, logger)
	require.IsType(t, &cache.RedisCache{}, redisBacked)
	require.NoError(t, redisBacked.Close())

	addr := server.Addr()
	server.Close()
	fallback := newPriceCache(ctx, config.Config{RedisAddr: addr, PriceCacheTTL: time.Minute}, logger)
	require.IsType(t, &cache.MemoryCache{}, fallback)
}

func TestNewNotificationSinkEmailOnly(t *testing.T) {
	sink, err := newNotificationSink(config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPFrom: "alerts@example.com"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, sink, 1)
	require.IsType(t, usecase.MultiSink{}, sink)
}
