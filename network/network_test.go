package network

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
)

func TestNewMonitor_AddressDerivation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"explicit port kept", "http://abs.local:13378", "abs.local:13378"},
		{"http defaults to 80", "http://abs.local", "abs.local:80"},
		{"https defaults to 443", "https://abs.example", "abs.example:443"},
		{"empty url pins offline", "", ""},
		{"garbage pins offline", "://not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			monitor := NewMonitor(tt.url)
			if monitor.address != tt.want {
				t.Errorf("address = %q, want %q", monitor.address, tt.want)
			}
		})
	}
}

func TestRefresh_ReachableServer(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(nil)
	defer server.Close()

	monitor := NewMonitor(server.URL)
	if !monitor.Refresh(context.Background()) {
		t.Fatal("reachable server reported offline")
	}
	if !monitor.Online() {
		t.Error("verdict not published")
	}
}

func TestRefresh_UnreachablePort(t *testing.T) {
	t.Parallel()
	// Reserve a port, then close it so nothing is listening.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	listener.Close()

	monitor := NewMonitor("http://" + address)
	if monitor.Refresh(context.Background()) {
		t.Fatal("closed port reported online")
	}
	if monitor.Online() {
		t.Error("verdict not published")
	}
}

func TestMonitor_StartsOffline(t *testing.T) {
	t.Parallel()
	monitor := NewMonitor("http://abs.local")
	if monitor.Online() {
		t.Error("monitor online before any probe")
	}
}
