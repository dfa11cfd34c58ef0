package pool

import (
	"net"
	"testing"

	"github.com/gossipring/cassandra/internal/kverrors"
)

func TestAddIsIdempotent(t *testing.T) {
	p := New()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	first, err := p.Add("10.0.0.1:9000", client, "10.0.0.1:9042")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := p.Add("10.0.0.1:9000", client, "10.0.0.1:9042")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first != second {
		t.Fatal("expected Add to return the same *Conn on repeated calls")
	}
	if p.Len() != 1 {
		t.Fatalf("expected pool to contain exactly 1 connection, found %d", p.Len())
	}
}

func TestGetByAliasAndRemoteAddr(t *testing.T) {
	p := New()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	p.Add("10.0.0.1:9000", client, "10.0.0.1:9042")

	byAlias, err := p.Get("10.0.0.1:9042")
	if err != nil {
		t.Fatalf("Get by alias: %v", err)
	}
	byRemote, err := p.Get("10.0.0.1:9000")
	if err != nil {
		t.Fatalf("Get by remote addr: %v", err)
	}
	if byAlias != byRemote {
		t.Fatal("expected alias and remote-addr lookups to resolve to the same connection")
	}
}

func TestGetMissingReturnsIdentifierNotFound(t *testing.T) {
	p := New()
	_, err := p.Get("nope")
	if !kverrors.Is(err, kverrors.IdentifierNotFound) {
		t.Fatalf("expected IdentifierNotFound, got %v", err)
	}
}

func TestDuplicateIdentifierRejectedWithoutReplacing(t *testing.T) {
	p := New()
	c1, s1 := net.Pipe()
	defer c1.Close()
	defer s1.Close()
	c2, s2 := net.Pipe()
	defer c2.Close()
	defer s2.Close()

	p.Add("10.0.0.1:1", c1, "shared-alias")
	conn2, _ := p.Add("10.0.0.2:2", c2, "shared-alias")

	if conn2.Alias != "" {
		t.Fatalf("expected second connection's alias assignment to be rejected, got %q", conn2.Alias)
	}

	resolved, err := p.Get("shared-alias")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resolved.RemoteAddr != "10.0.0.1:1" {
		t.Fatalf("expected alias to still resolve to the first holder, got %s", resolved.RemoteAddr)
	}
}

func TestRemoveDropsBothMappings(t *testing.T) {
	p := New()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	p.Add("10.0.0.1:1", client, "10.0.0.1:9042")
	socket, ok := p.Remove("10.0.0.1:1")
	if !ok || socket != client {
		t.Fatal("expected Remove to return the original socket")
	}

	if _, err := p.Get("10.0.0.1:9042"); !kverrors.Is(err, kverrors.IdentifierNotFound) {
		t.Fatal("expected alias to be gone after Remove")
	}
	if _, err := p.Get("10.0.0.1:1"); !kverrors.Is(err, kverrors.IdentifierNotFound) {
		t.Fatal("expected remote addr entry to be gone after Remove")
	}
}

func TestUpdateRejectsAliasHeldByAnotherConnection(t *testing.T) {
	p := New()
	c1, s1 := net.Pipe()
	defer c1.Close()
	defer s1.Close()
	c2, s2 := net.Pipe()
	defer c2.Close()
	defer s2.Close()

	p.Add("10.0.0.1:1", c1, "taken")
	p.Add("10.0.0.2:2", c2, "")

	err := p.Update("10.0.0.2:2", "taken")
	if !kverrors.Is(err, kverrors.DuplicateIdentifier) {
		t.Fatalf("expected DuplicateIdentifier, got %v", err)
	}
}
