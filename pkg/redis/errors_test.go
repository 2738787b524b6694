package redis_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/togglekit/pkg/redis"
)

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset by peer")
	err := &redis.Error{
		Kind:    redis.KindCommand,
		Op:      "set",
		Key:     "feature:flags",
		Attempt: 3,
		Args:    []string{"feature:flags", "{}"},
		Err:     cause,
	}

	assert.Equal(t,
		`redis command failed: op=set key="feature:flags" attempt=3 args=["feature:flags" "{}"]: connection reset by peer`,
		err.Error())

	assert.ErrorIs(t, err, redis.ErrCommand)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, redis.ErrProtocol)
	assert.NotErrorIs(t, err, redis.ErrConnection)

	var target *redis.Error
	wrapped := errors.Join(errors.New("context"), err)
	if assert.ErrorAs(t, wrapped, &target) {
		assert.Equal(t, redis.KindCommand, target.Kind)
		assert.Equal(t, 3, target.Attempt)
	}
}

func TestError_Kinds(t *testing.T) {
	t.Parallel()

	kinds := map[redis.ErrorKind]error{
		redis.KindConnection:       redis.ErrConnection,
		redis.KindCommand:          redis.ErrCommand,
		redis.KindAttemptsExceeded: redis.ErrAttemptsExceeded,
		redis.KindProtocol:         redis.ErrProtocol,
		redis.KindHandler:          redis.ErrHandler,
		redis.KindEncoding:         redis.ErrEncoding,
	}
	for kind, sentinel := range kinds {
		err := &redis.Error{Kind: kind}
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, sentinel.Error(), err.Error())
	}

	assert.Equal(t, "unknown redis error", (&redis.Error{}).Error())
	assert.NotErrorIs(t, &redis.Error{}, redis.ErrCommand)
}

func TestError_ProtocolReplies(t *testing.T) {
	t.Parallel()

	err := &redis.Error{
		Kind:    redis.KindProtocol,
		Op:      "watchedGetSet",
		Key:     "k",
		Attempt: 1,
		Replies: []string{"set k v: QUEUED"},
	}
	assert.Contains(t, err.Error(), `replies=["set k v: QUEUED"]`)
	assert.Nil(t, errors.Unwrap(err))
}
