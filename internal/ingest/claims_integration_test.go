//go:build integration

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mailhook/pkg/testutil/containers"
)

func TestRedisClaims(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	claims := NewRedisClaims(rc.Client)

	ok, err := claims.Claim(ctx, "ingest:claim:msg-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// second claim on the same key loses
	ok, err = claims.Claim(ctx, "ingest:claim:msg-1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// release frees the key for the next trigger
	claims.Release(ctx, "ingest:claim:msg-1")
	ok, err = claims.Claim(ctx, "ingest:claim:msg-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisClaimExpires(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	claims := NewRedisClaims(rc.Client)

	ok, err := claims.Claim(ctx, "ingest:claim:msg-2", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := claims.Claim(ctx, "ingest:claim:msg-2", time.Minute)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond)
}
