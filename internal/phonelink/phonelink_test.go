// ABOUTME: Tests for the phone link over WebSocket and in memory
// ABOUTME: Hello exchange, notify path, phone writes, single-session policy
package phonelink

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// startTestServer runs a Server on an ephemeral port via httptest.
func startTestServer(t *testing.T, cfg ServerConfig) (*Server, string) {
	t.Helper()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	s := NewServer(cfg)
	s.mux.HandleFunc("/link", s.handleWebSocket)
	ts := httptest.NewServer(s.mux)
	t.Cleanup(ts.Close)
	return s, strings.TrimPrefix(ts.URL, "http://")
}

func TestHelloExchange(t *testing.T) {
	srv, addr := startTestServer(t, ServerConfig{Name: "coord-1", ChunkSize: 160})

	phone, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer phone.Close()

	if phone.ChunkSize() != 160 {
		t.Errorf("negotiated chunk size %d, want 160", phone.ChunkSize())
	}
	if phone.Session() == "" {
		t.Error("no session id assigned")
	}
	if srv.ChunkSize() != 160 {
		t.Errorf("server chunk size %d, want 160", srv.ChunkSize())
	}

	waitFor(t, srv.Connected, "server never saw the session")
}

func TestNotifyReachesPhone(t *testing.T) {
	srv, addr := startTestServer(t, ServerConfig{Name: "coord-1"})

	phone, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer phone.Close()
	waitFor(t, srv.Connected, "session never registered")

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := srv.Notify(payload); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case got := <-phone.Notifications():
		if !bytes.Equal(got, payload) {
			t.Errorf("notification = %x, want %x", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestPhoneWriteReachesHandler(t *testing.T) {
	srv, addr := startTestServer(t, ServerConfig{Name: "coord-1"})

	received := make(chan []byte, 1)
	srv.SetWriteHandler(func(data []byte) {
		cp := make([]byte, len(data))
		copy(cp, data)
		received <- cp
	})

	phone, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer phone.Close()

	payload := []byte("P:1:0:1:0:16000:16:0:0:abcd")
	if err := phone.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, payload) {
			t.Errorf("handler got %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write never reached the handler")
	}
}

func TestNotifyWithoutPhone(t *testing.T) {
	srv := NewServer(ServerConfig{Name: "coord-1"})
	if err := srv.Notify([]byte{1}); err != ErrNotConnected {
		t.Errorf("notify without phone: %v, want ErrNotConnected", err)
	}
}

func TestSecondPhoneRejected(t *testing.T) {
	srv, addr := startTestServer(t, ServerConfig{Name: "coord-1"})

	first, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()
	waitFor(t, srv.Connected, "first session never registered")

	// The second phone is turned away before the hello.
	if _, err := Dial(addr); err == nil {
		t.Fatal("second concurrent phone accepted")
	}
}

func TestLoopbackRoundTrip(t *testing.T) {
	lb := NewLoopback(160)

	var got []byte
	lb.SetWriteHandler(func(data []byte) {
		got = append([]byte(nil), data...)
	})
	lb.InjectWrite([]byte("hello"))
	if string(got) != "hello" {
		t.Errorf("handler got %q", got)
	}

	if err := lb.Notify([]byte{9, 9}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case n := <-lb.Notified:
		if len(n) != 2 {
			t.Errorf("notification length %d", len(n))
		}
	default:
		t.Fatal("notification not queued")
	}

	lb.SetConnected(false)
	if err := lb.Notify([]byte{1}); err != ErrNotConnected {
		t.Errorf("notify while detached: %v", err)
	}
}

// waitFor polls cond briefly; WebSocket registration is asynchronous.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
