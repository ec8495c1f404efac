// Package contentserver runs the ephemeral server behind the control host:
// it serves the generated entry document out of the scratch directory and
// pushes live-reload notifications to connected browsers. One content server
// is alive per session; folder switches stop it and start a fresh one.
package contentserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
)

// ReloadPath is the live-reload channel path. The control host bridges this
// path without interpreting payloads.
const ReloadPath = "/livereload"

// UpdateMessage is one frame on the live-reload channel.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves one scratch directory with live reload.
type Server struct {
	dir        string
	httpServer *http.Server
	listener   net.Listener
	port       int

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *client
	unregister   chan *websocket.Conn

	shutdownOnce sync.Once
	hubCancel    context.CancelFunc
	hubDone      chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a content server for the scratch directory at dir.
func New(dir string) *Server {
	return &Server{
		dir:        dir,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
}

// Start binds an OS-assigned port on localhost, begins serving, and waits
// up to readyTimeout for the server to answer. A timeout is fatal to
// session startup.
func (s *Server) Start(ctx context.Context, readyTimeout time.Duration) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("binding content server port: %w", err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(ReloadPath, s.handleReloadChannel)
	mux.Handle("/", http.FileServer(http.Dir(s.dir)))
	s.httpServer = &http.Server{Handler: mux}

	// The hub lives until Shutdown, not until the provisioning context ends.
	hubCtx, hubCancel := context.WithCancel(ctx)
	s.hubCancel = hubCancel
	go s.runHub(hubCtx)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("content server stopped", "error", err)
		}
	}()

	if err := s.awaitReady(ctx, readyTimeout); err != nil {
		_ = s.Shutdown(context.Background())
		return err
	}
	log.Debug("content server ready", "port", s.port)
	return nil
}

// Port returns the OS-assigned port. Valid after Start.
func (s *Server) Port() int { return s.port }

// Addr returns the host:port the server listens on. Valid after Start.
func (s *Server) Addr() string { return fmt.Sprintf("127.0.0.1:%d", s.port) }

func (s *Server) awaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/", s.Addr())
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return fmt.Errorf("content server not ready after %v", timeout)
}

// NotifyReload tells every connected browser to reload.
func (s *Server) NotifyReload() {
	s.broadcastMessage(UpdateMessage{Type: "reload", Timestamp: time.Now()})
}

// NotifyBuildError surfaces a regeneration failure to connected browsers.
func (s *Server) NotifyBuildError(content string) {
	s.broadcastMessage(UpdateMessage{Type: "build_error", Content: content, Timestamp: time.Now()})
}

func (s *Server) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn("failed to marshal update message", "error", err)
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case s.broadcast <- data:
	case <-s.hubDone:
	}
}

func (s *Server) handleReloadChannel(w http.ResponseWriter, r *http.Request) {
	// The channel is only reachable through the control host bridge on
	// loopback; origin enforcement happens at the control host.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Warn("live-reload upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	go c.writePump()
	go c.readPump(s)
	select {
	case s.register <- c:
	case <-s.hubDone:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (s *Server) runHub(ctx context.Context) {
	defer close(s.hubDone)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.register:
			s.clientsMutex.Lock()
			s.clients[c.conn] = c
			s.clientsMutex.Unlock()

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if c, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(c.send)
			}
			s.clientsMutex.Unlock()

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var stalled []*websocket.Conn
			for conn, c := range s.clients {
				select {
				case c.send <- message:
				default:
					stalled = append(stalled, conn)
				}
			}
			s.clientsMutex.RUnlock()

			for _, conn := range stalled {
				s.clientsMutex.Lock()
				if c, ok := s.clients[conn]; ok {
					delete(s.clients, conn)
					close(c.send)
				}
				s.clientsMutex.Unlock()
				conn.Close(websocket.StatusNormalClosure, "")
			}
		}
	}
}

// ClientCount reports the live-reload connections currently attached.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Shutdown stops the server and closes every live-reload connection.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.hubCancel != nil {
			s.hubCancel()
		}

		s.clientsMutex.Lock()
		for conn, c := range s.clients {
			close(c.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*client)
		s.clientsMutex.Unlock()

		if s.httpServer != nil {
			shutdownErr = s.httpServer.Shutdown(ctx)
		}
	})
	return shutdownErr
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds inbound frames; browsers only send pings.
	maxMessageSize = 512
)

func (c *client) readPump(s *Server) {
	defer func() {
		select {
		case s.unregister <- c.conn:
		case <-s.hubDone:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		readCtx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				log.Debug("live-reload read ended", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			if !ok {
				cancel()
				return
			}
			if err := c.conn.Write(writeCtx, websocket.MessageText, message); err != nil {
				cancel()
				return
			}
			cancel()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			if err := c.conn.Ping(pingCtx); err != nil {
				cancel()
				return
			}
			cancel()
		}
	}
}
