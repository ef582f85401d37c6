package introspect

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"orchestrator/cache"
	"orchestrator/crypter"
	"orchestrator/job"
	"orchestrator/tcp"
)

var adminLogger = logrus.WithFields(logrus.Fields{"component": "introspect.admin"})

// adminFormat tags every frame exchanged on the admin protocol, the same
// role tcp's conn_test.go "TST"/"TNN" constants play for the jobs protocol.
const adminFormat = "ADM"

// Message kinds on the admin TCP protocol. None of these mutate a job; the
// protocol is read-only by construction (spec: admin surface is not the
// jobs API).
const (
	KindStatsRequest int8 = iota + 1
	KindStatsResponse
	KindTagsRequest
	KindTagsResponse
	KindError
)

// AdminServer answers cache-stats and job-tag lookups over a framed,
// protobuf-encoded TCP connection. It never opens a cache ticket and never
// calls AddEntry/UpdateEntry/RemoveEntry.
type AdminServer struct {
	Cache      cache.Cache
	Crypter    crypter.Crypter
	Compressor tcp.CompressorType
}

// NewAdminServer builds a server answering against c, encrypting frames
// with crypt (the admin protocol always runs encrypted — it is exposed to
// operator tooling, not just other replicas).
func NewAdminServer(c cache.Cache, crypt crypter.Crypter) *AdminServer {
	return &AdminServer{Cache: c, Crypter: crypt, Compressor: tcp.None}
}

// Serve accepts admin connections on address until ctx is cancelled.
func (s *AdminServer) Serve(ctx context.Context, address string) error {
	listener, err := tcp.ListenTCP(address)
	if err != nil {
		return errors.Errorf("introspect: admin listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				adminLogger.WithError(err).Warn("accept failed")
				continue
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *AdminServer) handle(ctx context.Context, tcpConn *net.TCPConn) {
	defer func() { _ = tcpConn.Close() }()

	conn := tcp.NewConn(tcpConn, adminFormat)
	conn.SetParser(tcp.PROTOBUF)
	conn.SetCompressor(s.Compressor)
	conn.SetCrypter(s.Crypter)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, tcp.ErrEof) && !errors.Is(err, tcp.ErrClosedConnection) {
				adminLogger.WithError(err).Debug("admin read failed")
			}
			return
		}

		req := &structpb.Struct{}
		if err := msg.UnpackReadBody(req); err != nil {
			adminLogger.WithError(err).Warn("admin unpack failed")
			return
		}

		resp, kind, err := s.dispatch(ctx, msg.Kind, req)
		if err != nil {
			resp, _ = structpb.NewStruct(map[string]any{"error": err.Error()})
			kind = KindError
		}
		if err := conn.WriteMessage(kind, resp); err != nil {
			adminLogger.WithError(err).Warn("admin write failed")
			return
		}
	}
}

func (s *AdminServer) dispatch(ctx context.Context, kind int8, req *structpb.Struct) (*structpb.Struct, int8, error) {
	switch kind {
	case KindStatsRequest:
		snap, err := TakeSnapshot(ctx, s.Cache)
		if err != nil {
			return nil, 0, err
		}
		resp, err := snapshotToStruct(snap)
		if err != nil {
			return nil, 0, err
		}
		return resp, KindStatsResponse, nil

	case KindTagsRequest:
		jobKey := req.Fields["jobKey"].GetStringValue()
		if jobKey == "" {
			return nil, 0, errors.New("introspect: tags request missing jobKey")
		}
		tags, err := JobTags(ctx, s.Cache, jobKey)
		if err != nil {
			return nil, 0, err
		}
		values := make(map[string]any, len(tags))
		for k, v := range tags {
			values[k] = v
		}
		resp, err := structpb.NewStruct(values)
		if err != nil {
			return nil, 0, errors.Errorf("introspect: encode tags: %w", err)
		}
		return resp, KindTagsResponse, nil

	default:
		return nil, 0, errors.Errorf("introspect: unsupported admin request kind %d", kind)
	}
}

// snapshotToStruct encodes a Snapshot's status counts as a structpb.Struct,
// string-keyed since protobuf's Value map requires string keys.
func snapshotToStruct(snap Snapshot) (*structpb.Struct, error) {
	values := make(map[string]any, len(snap.Counts)+1)
	for status, count := range snap.Counts {
		values[string(status)] = float64(count)
	}
	values["total"] = float64(snap.Total)
	return structpb.NewStruct(values)
}

// QueryStats dials an AdminServer at address and returns its cache
// occupancy snapshot. Used by operator tooling and tests.
func QueryStats(address string, crypt crypter.Crypter) (Snapshot, error) {
	resp, err := roundTrip(address, crypt, KindStatsRequest, &structpb.Struct{})
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Counts: make(map[job.CacheStatus]int, len(resp.Fields))}
	for k, v := range resp.Fields {
		n := int(v.GetNumberValue())
		if k == "total" {
			snap.Total = n
			continue
		}
		snap.Counts[job.CacheStatus(k)] = n
	}
	return snap, nil
}

// QueryJobTags dials an AdminServer at address and returns the tag map held
// for jobKey.
func QueryJobTags(address string, crypt crypter.Crypter, jobKey string) (map[string]string, error) {
	req, err := structpb.NewStruct(map[string]any{"jobKey": jobKey})
	if err != nil {
		return nil, errors.Errorf("introspect: encode tags request: %w", err)
	}
	resp, err := roundTrip(address, crypt, KindTagsRequest, req)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(resp.Fields))
	for k, v := range resp.Fields {
		tags[k] = v.GetStringValue()
	}
	return tags, nil
}

func roundTrip(address string, crypt crypter.Crypter, kind int8, req *structpb.Struct) (*structpb.Struct, error) {
	tcpConn, err := tcp.DialTCP(address)
	if err != nil {
		return nil, errors.Errorf("introspect: dial admin server: %w", err)
	}
	defer func() { _ = tcpConn.Close() }()

	conn := tcp.NewConn(tcpConn, adminFormat)
	conn.SetParser(tcp.PROTOBUF)
	conn.SetCompressor(tcp.None)
	conn.SetCrypter(crypt)

	if err := conn.WriteMessage(kind, req); err != nil {
		return nil, errors.Errorf("introspect: write admin request: %w", err)
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, errors.Errorf("introspect: read admin response: %w", err)
	}
	if msg.Kind == KindError {
		errResp := &structpb.Struct{}
		if err := msg.UnpackReadBody(errResp); err != nil {
			return nil, errors.Errorf("introspect: unpack error response: %w", err)
		}
		return nil, errors.Newf("introspect: admin server error: %s", errResp.Fields["error"].GetStringValue())
	}

	resp := &structpb.Struct{}
	if err := msg.UnpackReadBody(resp); err != nil {
		return nil, errors.Errorf("introspect: unpack admin response: %w", err)
	}
	return resp, nil
}

