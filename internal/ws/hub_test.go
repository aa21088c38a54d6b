package ws

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(subject string) *Client {
	return newClient(nil, subject, testLogger())
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())
	if hub.clients == nil {
		t.Error("hub.clients map is nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestRegisterMultipleClients(t *testing.T) {
	hub := NewHub(testLogger())

	tests := []struct {
		name    string
		subject string
	}{
		{name: "first client", subject: "hmi-1"},
		{name: "second client", subject: "hmi-2"},
		{name: "third client", subject: "historian"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.Register(newTestClient(tt.subject))
			if got, want := hub.ClientCount(), i+1; got != want {
				t.Errorf("ClientCount() = %d, want %d", got, want)
			}
		})
	}
}

// TestUnregister verifies that Unregister removes a client and closes its send channel.
func TestUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("hmi-1")

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("client.send channel is not closed")
	}

	// A second unregister is a no-op.
	hub.Unregister(client)
}

func TestUnregisterNotRegistered(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("hmi-1")

	hub.Unregister(client)

	select {
	case _, ok := <-client.send:
		if !ok {
			t.Error("channel closed for unregistered client")
		}
	default:
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	clients := []*Client{newTestClient("a"), newTestClient("b"), newTestClient("c")}
	for _, c := range clients {
		hub.Register(c)
	}

	hub.Broadcast(Message{Type: MessageCycleCompleted, ID: "cycle-1", Timestamp: time.Now()})

	for i, c := range clients {
		select {
		case got := <-c.send:
			if got.Type != MessageCycleCompleted || got.ID != "cycle-1" {
				t.Errorf("client %d received %+v", i, got)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client %d did not receive message", i)
		}
	}
}

func TestBroadcastDropsMessagesWhenBufferFull(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("slow")
	hub.Register(client)

	for range sendBuffer {
		client.send <- Message{Type: MessageCycleCompleted, ID: "fill"}
	}

	hub.Broadcast(Message{Type: MessageFaultDetected, ID: "dropped"})

	if len(client.send) != sendBuffer {
		t.Errorf("len(send) = %d, want %d", len(client.send), sendBuffer)
	}
	if hub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", hub.Dropped())
	}
	for range sendBuffer {
		if m := <-client.send; m.ID == "dropped" {
			t.Fatal("dropped message was delivered")
		}
	}
}

func TestCloseAll(t *testing.T) {
	hub := NewHub(testLogger())
	a, b := newTestClient("a"), newTestClient("b")
	hub.Register(a)
	hub.Register(b)

	hub.CloseAll()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	for _, c := range []*Client{a, b} {
		if _, ok := <-c.send; ok {
			t.Errorf("send channel of %s not closed", c.subject)
		}
	}
	// Unregister after CloseAll must not double-close.
	hub.Unregister(a)
}

func TestConcurrentRegisterUnregisterBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client := newTestClient(string(rune('a' + id)))
			hub.Register(client)
			go func() {
				for range client.send {
				}
			}()
			time.Sleep(10 * time.Millisecond)
			hub.Unregister(client)
		}(i)
	}
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: MessageCycleCompleted, ID: "concurrent"})
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestConcurrentClientCount(t *testing.T) {
	hub := NewHub(testLogger())
	for i := range 10 {
		hub.Register(newTestClient(string(rune('a' + i))))
	}

	var wg sync.WaitGroup
	var sum int64
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&sum, int64(hub.ClientCount()))
		}()
	}
	wg.Wait()

	if sum != 1000 {
		t.Errorf("sum of ClientCount() = %d, want 1000", sum)
	}
}
