// ABOUTME: WebSocket implementation of the phone link
// ABOUTME: Hosts one phone session at a time, binary frames both directions
package phonelink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueLen  = 100
)

// hello is the first message of a phone session, sent as text. It stands in
// for the MTU exchange a radio link would do.
type hello struct {
	Type      string `json:"type"`
	Session   string `json:"session"`
	Name      string `json:"name"`
	ChunkSize int    `json:"chunk_size"`
}

// ServerConfig configures a phone link server.
type ServerConfig struct {
	Port      int
	Name      string
	ChunkSize int // defaults to DefaultChunkSize
}

// Server hosts the phone side of the relay over WebSocket. Only one phone
// session is active at a time; a new connection displaces nothing and is
// rejected while a session is up.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	mu      sync.RWMutex
	session *session
	handler WriteFunc
	closed  bool

	wg sync.WaitGroup
}

// session is one connected phone.
type session struct {
	id       string
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
}

// NewServer creates a phone link server. Call Start to begin listening.
func NewServer(config ServerConfig) *Server {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	mux := http.NewServeMux()
	return &Server{
		config: config,
		mux:    mux,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Trusted local network only, same as a pairing-based radio
				// link. Non-browser clients carry no Origin header.
				return true
			},
		},
	}
}

// Start begins serving in the background. Returns once the listener is
// configured; serve errors are logged.
func (s *Server) Start() error {
	s.mux.HandleFunc("/link", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}

	log.Printf("phonelink: listening on %s", addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("phonelink: serve: %v", err)
		}
	}()
	return nil
}

// SetWriteHandler installs the callback invoked for every binary frame the
// phone writes.
func (s *Server) SetWriteHandler(fn WriteFunc) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// ChunkSize returns the notify payload size offered to phones.
func (s *Server) ChunkSize() int { return s.config.ChunkSize }

// Connected reports whether a phone session is up.
func (s *Server) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Notify queues one audio chunk for the connected phone. The queue absorbs
// scheduling jitter; a full queue drops the chunk rather than stalling the
// relay.
func (s *Server) Notify(data []byte) error {
	s.mu.RLock()
	sess := s.session
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if sess == nil {
		return ErrNotConnected
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case sess.sendChan <- cp:
		return nil
	default:
		return fmt.Errorf("phonelink: send queue full")
	}
}

// Close shuts the server down and disconnects any phone.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		sess.conn.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("phonelink: shutdown: %v", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("phonelink: upgrade: %v", err)
		return
	}
	log.Printf("phonelink: connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	sess := &session{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan []byte, sendQueueLen),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.session != nil {
		s.mu.Unlock()
		log.Printf("phonelink: rejecting second phone, session %s active", s.session.id)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "link busy"),
			time.Now().Add(writeDeadline))
		return
	}
	s.session = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.session == sess {
			s.session = nil
		}
		s.mu.Unlock()
		close(sess.done)
		log.Printf("phonelink: session %s ended", sess.id)
	}()

	greeting := hello{
		Type:      "hello",
		Session:   sess.id,
		Name:      s.config.Name,
		ChunkSize: s.config.ChunkSize,
	}
	data, err := json.Marshal(greeting)
	if err != nil {
		log.Printf("phonelink: marshal hello: %v", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("phonelink: send hello: %v", err)
		return
	}
	log.Printf("phonelink: session %s up, chunk size %d", sess.id, s.config.ChunkSize)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sessionWriter(sess)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("phonelink: read: %v", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		s.mu.RLock()
		fn := s.handler
		s.mu.RUnlock()
		if fn != nil {
			fn(data)
		}
	}
}

// sessionWriter drains the notify queue onto the wire and keeps the
// connection alive with pings.
func (s *Server) sessionWriter(sess *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-sess.sendChan:
			sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sess.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Printf("phonelink: write: %v", err)
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, []byte{},
				time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}
