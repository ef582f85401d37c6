package replicache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orchestrator/cache"
	"orchestrator/job"
)

func TestHashKey(t *testing.T) {
	assert.Equal(t, "job-entry:run-42", hashKey("run-42"))
}

func TestRedisCache_ApplyRemote_PutAndRemove(t *testing.T) {
	rc := &RedisCache{codec: cache.NewCodec(nil)}

	encoded, err := rc.codec.Encode(&job.State{JobKey: "run-1", TracStatus: job.StatusRunning})
	assert.NoError(t, err)

	rc.applyRemote(&update{Cmd: cmdPut, Key: "run-1", Revision: 3, Status: job.CacheQueuedInTrac, Value: encoded})

	e, ok := rc.getLocal("run-1")
	assert.True(t, ok)
	assert.Equal(t, int64(3), e.revision)
	assert.Equal(t, job.CacheQueuedInTrac, e.status)
	assert.Equal(t, "run-1", e.value.JobKey)

	rc.applyRemote(&update{Cmd: cmdRemove, Key: "run-1"})
	_, ok = rc.getLocal("run-1")
	assert.False(t, ok)
}

func TestRedisCache_ApplyRemote_MalformedValueIgnored(t *testing.T) {
	rc := &RedisCache{codec: cache.NewCodec(nil)}
	rc.applyRemote(&update{Cmd: cmdPut, Key: "run-2", Revision: 1, Value: []byte("not a valid codec payload")})

	_, ok := rc.getLocal("run-2")
	assert.False(t, ok)
}
