// ABOUTME: Phone-side WebSocket client for the relay link
// ABOUTME: Dials a relay device, surfaces notifications, sends phone writes
package phonelink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Phone is the handset side of the link: it dials a relay device, receives
// audio notifications, and can write audio or control frames back.
type Phone struct {
	conn *websocket.Conn
	mu   sync.RWMutex

	notifications chan []byte

	session   string
	chunkSize int

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Dial connects to a relay device at addr (host:port) and completes the
// hello exchange.
func Dial(addr string) (*Phone, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/link"}
	log.Printf("phone: connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("phone: dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("phone: read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var h hello
	if err := json.Unmarshal(data, &h); err != nil {
		conn.Close()
		return nil, fmt.Errorf("phone: parse hello: %w", err)
	}
	if h.Type != "hello" {
		conn.Close()
		return nil, fmt.Errorf("phone: expected hello, got %q", h.Type)
	}
	log.Printf("phone: session %s up with %s, chunk size %d", h.Session, h.Name, h.ChunkSize)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Phone{
		conn:          conn,
		notifications: make(chan []byte, sendQueueLen),
		session:       h.Session,
		chunkSize:     h.ChunkSize,
		connected:     true,
		ctx:           ctx,
		cancel:        cancel,
	}
	go p.readMessages()
	return p, nil
}

// Notifications delivers audio chunks pushed by the relay device.
func (p *Phone) Notifications() <-chan []byte { return p.notifications }

// ChunkSize is the notify payload size the device announced.
func (p *Phone) ChunkSize() int { return p.chunkSize }

// Session is the session identifier the device assigned.
func (p *Phone) Session() string { return p.session }

// Write sends one binary frame to the device, as a phone app writing to the
// link characteristic would.
func (p *Phone) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *Phone) readMessages() {
	defer p.Close()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.ctx.Done():
			default:
				log.Printf("phone: read: %v", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case p.notifications <- data:
		case <-p.ctx.Done():
			return
		default:
			log.Printf("phone: notification queue full, dropping %d bytes", len(data))
		}
	}
}

// Close tears the connection down.
func (p *Phone) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.connected = false
		p.cancel()
		p.conn.Close()
	}
}

// IsConnected reports connection status.
func (p *Phone) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
