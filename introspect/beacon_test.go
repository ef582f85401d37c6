package introspect

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/cache"
	"orchestrator/job"
)

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

func TestBeacon_GossipReachesPeer(t *testing.T) {
	c1 := cache.NewMemCache()
	ticket, err := c1.OpenNewTicket(context.Background(), "job-1", time.Second)
	require.NoError(t, err)
	require.NoError(t, c1.AddEntry(context.Background(), ticket, job.CacheLaunchScheduled, &job.State{JobKey: "job-1"}))
	require.NoError(t, c1.CloseTicket(context.Background(), ticket))

	c2 := cache.NewMemCache()

	addr1 := freeUDPAddr(t)
	addr2 := freeUDPAddr(t)

	beacon1 := NewBeacon("replica-1", c1, []string{addr2}, 20*time.Millisecond)
	beacon2 := NewBeacon("replica-2", c2, []string{addr1}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = beacon1.Run(ctx, addr1) }()
	go func() { _ = beacon2.Run(ctx, addr2) }()

	require.Eventually(t, func() bool {
		peers := beacon2.KnownPeers()
		p, ok := peers["replica-1"]
		return ok && p.RunningJobs == 1
	}, 2*time.Second, 20*time.Millisecond)

	peers := beacon2.KnownPeers()
	assert.Equal(t, 1, peers["replica-1"].RunningJobs)
}
