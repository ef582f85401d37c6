package replicache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// lock is a per-key distributed lock backed by Redis SetNX, the same
// pattern the teacher's redis.DistributedLock uses. Release is a Lua
// compare-and-delete so a lock can only be released by whoever acquired it.
type lock struct {
	c      *client
	key    string
	token  string
	expiry time.Duration
}

func newLock(c *client, key string, expiry time.Duration) *lock {
	return &lock{
		c:      c,
		key:    fmt.Sprintf("lock:%s", key),
		token:  uuid.New().String(),
		expiry: expiry,
	}
}

func (l *lock) acquire() (bool, error) {
	return l.c.setNX(l.key, l.token, l.expiry)
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

func (l *lock) release() error {
	result, err := l.c.eval(releaseScript, []string{l.key}, l.token)
	if err != nil {
		return err
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return fmt.Errorf("lock not owned: %s", l.key)
	}
	return nil
}
