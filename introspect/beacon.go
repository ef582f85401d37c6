package introspect

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"orchestrator/cache"
	"orchestrator/job"
	"orchestrator/udp"
)

var beaconLogger = logrus.WithFields(logrus.Fields{"component": "introspect.beacon"})

// beaconFormat tags liveness gossip frames, distinct from the admin TCP
// protocol's frame tag.
const beaconFormat = "BCN"

// KindBeacon is the only message kind the liveness protocol carries.
const KindBeacon int8 = 1

// PeerState is one replica's self-reported liveness, gossiped over UDP
// (spec: no leader election or consensus, observability only).
type PeerState struct {
	ReplicaID   string    `json:"replicaId"`
	RunningJobs int       `json:"runningJobs"`
	TicketsHeld int       `json:"ticketsHeld"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Beacon periodically gossips this replica's liveness to a fixed set of
// peer addresses, and separately listens for peers' beacons.
type Beacon struct {
	ReplicaID string
	Cache     cache.Cache
	Peers     []string
	Interval  time.Duration

	mu    sync.Mutex
	peers map[string]PeerState
}

// NewBeacon builds a Beacon gossiping replicaID's liveness to peers every
// interval.
func NewBeacon(replicaID string, c cache.Cache, peers []string, interval time.Duration) *Beacon {
	return &Beacon{
		ReplicaID: replicaID,
		Cache:     c,
		Peers:     peers,
		Interval:  interval,
		peers:     make(map[string]PeerState),
	}
}

// Run binds bindAddress, sends this replica's liveness to every configured
// peer every Interval, and records every beacon it receives until ctx is
// cancelled.
func (b *Beacon) Run(ctx context.Context, bindAddress string) error {
	udpConn, err := udp.ListenUDP(bindAddress)
	if err != nil {
		return errors.Errorf("introspect: beacon listen: %w", err)
	}
	defer func() { _ = udpConn.Close() }()

	conn := udp.NewConn(udpConn, beaconFormat)
	conn.SetParser(udp.Parser_PROTOBUF)
	conn.SetCompressor(udp.Compressor_NONE)

	go b.receiveLoop(ctx, udpConn, conn)

	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.gossip(ctx, conn)
		}
	}
}

func (b *Beacon) gossip(ctx context.Context, conn udp.Conn) {
	self, err := b.selfState(ctx)
	if err != nil {
		beaconLogger.WithError(err).Warn("failed to compute self liveness")
		return
	}
	payload, err := peerStateToStruct(self)
	if err != nil {
		beaconLogger.WithError(err).Warn("failed to encode beacon")
		return
	}
	for _, addr := range b.Peers {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			beaconLogger.WithError(err).WithField("peer", addr).Warn("bad peer address")
			continue
		}
		if err := conn.WriteMessageTo(KindBeacon, payload, udpAddr); err != nil {
			beaconLogger.WithError(err).WithField("peer", addr).Debug("beacon send failed")
		}
	}
}

// receiveLoop reads beacons through conn.ReadMessageFrom and records each
// peer's reported state. The raw *net.UDPConn is used only to set a
// one-second read deadline, so a cancelled ctx is noticed between reads.
func (b *Beacon) receiveLoop(ctx context.Context, udpConn *net.UDPConn, conn udp.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = udpConn.SetReadDeadline(time.Now().Add(time.Second))
		msg, _, err := conn.ReadMessageFrom()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		if msg.Kind != KindBeacon {
			continue
		}

		payload := &structpb.Struct{}
		if err := msg.ReadBody(payload); err != nil {
			beaconLogger.WithError(err).Debug("failed to decode beacon")
			continue
		}
		peer := structToPeerState(payload)
		peer.LastSeen = time.Now()

		b.mu.Lock()
		b.peers[peer.ReplicaID] = peer
		b.mu.Unlock()
	}
}

// KnownPeers returns the most recently observed state of every peer this
// replica has heard from.
func (b *Beacon) KnownPeers() map[string]PeerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]PeerState, len(b.peers))
	for k, v := range b.peers {
		out[k] = v
	}
	return out
}

func (b *Beacon) selfState(ctx context.Context) (PeerState, error) {
	running, err := b.Cache.QueryState(ctx, job.Set(job.StatusForRunningJobs), true)
	if err != nil {
		return PeerState{}, errors.Errorf("query running jobs: %w", err)
	}
	withActive, err := b.Cache.QueryState(ctx, job.AllCacheStatuses, true)
	if err != nil {
		return PeerState{}, errors.Errorf("query all active: %w", err)
	}
	withoutActive, err := b.Cache.QueryState(ctx, job.AllCacheStatuses, false)
	if err != nil {
		return PeerState{}, errors.Errorf("query all settled: %w", err)
	}

	return PeerState{
		ReplicaID:   b.ReplicaID,
		RunningJobs: len(running),
		TicketsHeld: len(withActive) - len(withoutActive),
	}, nil
}

func peerStateToStruct(p PeerState) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"replicaId":   p.ReplicaID,
		"runningJobs": float64(p.RunningJobs),
		"ticketsHeld": float64(p.TicketsHeld),
	})
}

func structToPeerState(s *structpb.Struct) PeerState {
	return PeerState{
		ReplicaID:   s.Fields["replicaId"].GetStringValue(),
		RunningJobs: int(s.Fields["runningJobs"].GetNumberValue()),
		TicketsHeld: int(s.Fields["ticketsHeld"].GetNumberValue()),
	}
}
