package coa

import (
	"context"
	"errors"
	"testing"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/vendors/mikrotik"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

type stubClient struct {
	requests  []*radius.Packet
	addrs     []string
	responses []*radius.Packet
	errs      []error
}

func (s *stubClient) Exchange(_ context.Context, packet *radius.Packet, addr string) (*radius.Packet, error) {
	i := len(s.requests)
	s.requests = append(s.requests, packet)
	s.addrs = append(s.addrs, addr)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return radius.New(radius.CodeDisconnectACK, []byte("x")), nil
}

func testNas() *model.NasDevice {
	return &model.NasDevice{
		Name:      "edge-1",
		IPAddress: "192.0.2.20",
		Secret:    "s3cret",
		Vendor:    "mikrotik",
		CoAPort:   3799,
	}
}

func TestDisconnectSessionsCountsAcks(t *testing.T) {
	stub := &stubClient{
		responses: []*radius.Packet{
			radius.New(radius.CodeDisconnectACK, []byte("x")),
			radius.New(radius.CodeDisconnectNAK, []byte("x")),
		},
	}
	controller := NewController(stub, nil)

	sessions := []aaa.Session{
		{Username: "acme-alice", SessionID: "sess-1"},
		{Username: "acme-alice", SessionID: "sess-2"},
	}
	result := controller.DisconnectSessions(context.Background(), testNas(), sessions)

	if result.Attempted != 2 || result.Confirmed != 1 {
		t.Fatalf("result = %+v, want attempted=2 confirmed=1", result)
	}
	if stub.addrs[0] != "192.0.2.20:3799" {
		t.Fatalf("addr = %q, want 192.0.2.20:3799", stub.addrs[0])
	}
	if stub.requests[0].Code != radius.CodeDisconnectRequest {
		t.Fatalf("code = %v, want Disconnect-Request", stub.requests[0].Code)
	}
	if got := rfc2865.UserName_GetString(stub.requests[0]); got != "acme-alice" {
		t.Fatalf("User-Name = %q, want acme-alice", got)
	}
}

func TestDisconnectSessionsSurvivesTimeout(t *testing.T) {
	stub := &stubClient{
		errs: []error{errors.New("context deadline exceeded"), nil},
		responses: []*radius.Packet{
			nil,
			radius.New(radius.CodeDisconnectACK, []byte("x")),
		},
	}
	controller := NewController(stub, nil)

	sessions := []aaa.Session{
		{Username: "acme-bob", SessionID: "sess-1"},
		{Username: "acme-bob", SessionID: "sess-2"},
	}
	result := controller.DisconnectSessions(context.Background(), testNas(), sessions)

	if result.Attempted != 2 || result.Confirmed != 1 {
		t.Fatalf("result = %+v, want attempted=2 confirmed=1", result)
	}
	if len(stub.requests) != 2 {
		t.Fatalf("a timeout must not stop the remaining sessions, sent %d", len(stub.requests))
	}
}

func TestChangeSessionsRateLimitCarriesAttribute(t *testing.T) {
	stub := &stubClient{
		responses: []*radius.Packet{radius.New(radius.CodeCoAACK, []byte("x"))},
	}
	controller := NewController(stub, nil)

	sessions := []aaa.Session{{Username: "acme-carol", SessionID: "sess-9"}}
	result := controller.ChangeSessionsRateLimit(context.Background(), testNas(), sessions, "10M/50M")

	if result.Confirmed != 1 {
		t.Fatalf("result = %+v, want confirmed=1", result)
	}
	if stub.requests[0].Code != radius.CodeCoARequest {
		t.Fatalf("code = %v, want CoA-Request", stub.requests[0].Code)
	}
	if got := mikrotik.MikrotikRateLimit_GetString(stub.requests[0]); got != "10M/50M" {
		t.Fatalf("Mikrotik-Rate-Limit = %q, want 10M/50M", got)
	}
}

func TestDefaultCoAPort(t *testing.T) {
	stub := &stubClient{}
	controller := NewController(stub, nil)

	nas := testNas()
	nas.CoAPort = 0
	controller.DisconnectSessions(context.Background(), nas, []aaa.Session{{Username: "u", SessionID: "s"}})

	if stub.addrs[0] != "192.0.2.20:3799" {
		t.Fatalf("addr = %q, want default port 3799", stub.addrs[0])
	}
}
