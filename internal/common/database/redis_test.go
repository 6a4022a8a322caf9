package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_LookupAndStore(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, found, err := c.Lookup(ctx, "medkit:rxcui:aspirin")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Store(ctx, "medkit:rxcui:aspirin", "1191", time.Hour))

	val, found, err := c.Lookup(ctx, "medkit:rxcui:aspirin")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1191", val)

	mr.FastForward(2 * time.Hour)
	_, found, _ = c.Lookup(ctx, "medkit:rxcui:aspirin")
	assert.False(t, found)
}

func TestRedisClient_LookupError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet("k").SetErr(errors.New("connection refused"))

	c := NewRedisFromClient(db)
	_, found, err := c.Lookup(context.Background(), "k")
	assert.False(t, found)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
