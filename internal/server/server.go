// Package server hosts the operator-facing WebSocket bus: joystick samples
// in, velocity commands out, plus WebRTC signaling for the camera feed.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pwebrtc "github.com/pion/webrtc/v3"

	"github.com/rodri-castro/joy-base-control/internal/base"
	"github.com/rodri-castro/joy-base-control/internal/camera"
	"github.com/rodri-castro/joy-base-control/internal/protocol"
	"github.com/rodri-castro/joy-base-control/internal/teleop"
	"github.com/rodri-castro/joy-base-control/internal/webrtc"
)

// sampleQueueSize bounds how many joystick samples may wait while the
// controller is busy (notably during the reaction delay). Samples beyond
// that are dropped; a joystick publishes continuously, so the next one is
// never far behind.
const sampleQueueSize = 16

// Config for the server
type Config struct {
	ListenAddr   string
	Params       teleop.Params
	BaseAddress  string
	BaseProtocol string // "udp" or "tcp"
	RTSPURL      string
}

// Server owns the teleop controller and fans its velocity commands out to
// the platform and every connected operator page.
type Server struct {
	cfg        Config
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	controller *teleop.Controller
	samples    chan teleop.Sample
	baseDriver *base.Driver
	cameraFeed *camera.Feed
	upgrader   websocket.Upgrader
	staticFS   fs.FS
	httpSrv    *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// Client represents a connected WebSocket client
type Client struct {
	conn    *websocket.Conn
	server  *Server
	webrtc  *webrtc.Session
	send    chan []byte
	rtpChan chan []byte // Per-client RTP channel
	stopRTP chan struct{}
	mu      sync.Mutex
	closed  bool
}

// New creates a new server instance
func New(cfg Config, staticFS embed.FS) (*Server, error) {
	// Extract the web subdirectory from embedded FS
	webFS, err := fs.Sub(staticFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded web files: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		clients:  make(map[*Client]bool),
		samples:  make(chan teleop.Sample, sampleQueueSize),
		staticFS: webFS,
		ctx:      ctx,
		cancel:   cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}
	s.controller = teleop.NewController(cfg.Params, s.publishTwist)

	return s, nil
}

// Start starts the server
func (s *Server) Start() error {
	// Connect to the platform if configured
	if s.cfg.BaseAddress != "" {
		driver, err := base.NewDriver(base.Config{
			Address:  s.cfg.BaseAddress,
			Protocol: s.cfg.BaseProtocol,
		})
		if err != nil {
			log.Printf("Warning: failed to connect to base: %v", err)
		} else {
			s.baseDriver = driver
			log.Printf("Connected to base: %s", s.cfg.BaseAddress)
		}
	}

	// Start the camera feed if configured
	if s.cfg.RTSPURL != "" {
		feed, err := camera.NewFeed(s.cfg.RTSPURL)
		if err != nil {
			log.Printf("Warning: failed to create camera feed: %v", err)
		} else {
			if err := feed.Start(); err != nil {
				log.Printf("Warning: failed to connect to camera: %v", err)
			} else {
				s.cameraFeed = feed
				log.Printf("Connected to camera: %s", s.cfg.RTSPURL)
				go s.broadcastRTP()
			}
		}
	}

	// One goroutine drains the sample queue, so samples are processed
	// serially and in arrival order no matter how many operators connect.
	go s.dispatchSamples()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/", http.FileServer(http.FS(s.staticFS)))

	s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}

	log.Printf("Server starting on %s", s.cfg.ListenAddr)
	return s.httpSrv.ListenAndServe()
}

// dispatchSamples feeds queued joystick samples to the controller one at a
// time. The controller's reaction delay blocks this loop on purpose; it is
// the backpressure that debounces held scale buttons.
func (s *Server) dispatchSamples() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sample := <-s.samples:
			s.controller.HandleSample(s.ctx, sample)
		}
	}
}

// publishTwist delivers one velocity command to the platform and mirrors it
// to every operator page.
func (s *Server) publishTwist(v teleop.Twist) {
	if s.baseDriver != nil {
		if err := s.baseDriver.SendTwist(v); err != nil {
			log.Printf("Base: send error: %v", err)
		}
	}

	payload := protocol.TwistPayload{
		LinearX:  v.LinearX,
		LinearY:  v.LinearY,
		AngularZ: v.AngularZ,
	}
	s.clientsMu.RLock()
	for client := range s.clients {
		client.sendMessage(protocol.TypeTwist, payload)
	}
	s.clientsMu.RUnlock()
}

// broadcastRTP reads from the camera and sends to all connected clients
func (s *Server) broadcastRTP() {
	for packet := range s.cameraFeed.Packets() {
		s.clientsMu.RLock()
		for client := range s.clients {
			// Non-blocking send to each client's RTP channel
			select {
			case client.rtpChan <- packet:
			default:
				// Client's buffer full, drop packet for this client
			}
		}
		s.clientsMu.RUnlock()
	}
}

// Stop stops the server
func (s *Server) Stop() {
	s.cancel()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	if s.cameraFeed != nil {
		s.cameraFeed.Close()
	}
	if s.baseDriver != nil {
		s.baseDriver.Close()
	}
	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:    conn,
		server:  s,
		send:    make(chan []byte, 256),
		rtpChan: make(chan []byte, 500),
		stopRTP: make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	// Send initial status
	client.sendStatus()

	// Offer video only when a camera is attached
	if s.cameraFeed != nil {
		if err := client.initWebRTC(); err != nil {
			log.Printf("Failed to initialize WebRTC: %v", err)
		}
	}
}

func (c *Client) initWebRTC() error {
	session, err := webrtc.NewSession(webrtc.DefaultConfig(), func(candidate *pwebrtc.ICECandidate) {
		// Trickle the candidate to the operator
		payload := protocol.ICECandidatePayload{
			Candidate:     candidate.ToJSON().Candidate,
			SDPMid:        *candidate.ToJSON().SDPMid,
			SDPMLineIndex: *candidate.ToJSON().SDPMLineIndex,
		}
		c.sendMessage(protocol.TypeICECandidate, payload)
	})
	if err != nil {
		return err
	}
	c.webrtc = session

	offer, err := session.CreateOffer()
	if err != nil {
		return err
	}
	c.sendMessage(protocol.TypeOffer, protocol.SDPPayload{SDP: offer})

	go c.forwardRTP()
	return nil
}

func (c *Client) forwardRTP() {
	track := c.webrtc.VideoTrack()
	if track == nil {
		return
	}

	for {
		select {
		case <-c.stopRTP:
			return
		case packet, ok := <-c.rtpChan:
			if !ok {
				return
			}
			if _, err := track.Write(packet); err != nil {
				// Client disconnected or track closed
				return
			}
		}
	}
}

func (c *Client) sendStatus() {
	status := protocol.StatusPayload{
		BaseConnected:   c.server.baseDriver != nil,
		CameraConnected: c.server.cameraFeed != nil,
		VideoProtocol:   "rtsp",
	}
	if c.server.baseDriver != nil {
		status.ControlProtocol = c.server.baseDriver.Protocol()
	}
	c.sendMessage(protocol.TypeStatus, status)
}

func (c *Client) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("Failed to create message: %v", err)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("Client send buffer full, dropping message")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
			Code:    protocol.ErrInvalidMessage,
			Message: "Failed to parse message",
		})
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeJoy:
		var payload protocol.JoyPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendMessage(protocol.TypeError, protocol.ErrorPayload{
				Code:    protocol.ErrInvalidMessage,
				Message: "Failed to parse joy sample",
			})
			return
		}
		c.server.enqueueSample(teleop.Sample{
			Buttons: payload.Buttons,
			Axes:    payload.Axes,
		})

	case protocol.TypeAnswer:
		var payload protocol.SDPPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if c.webrtc != nil {
			if err := c.webrtc.SetAnswer(payload.SDP); err != nil {
				log.Printf("Failed to set answer: %v", err)
			}
		}

	case protocol.TypeICECandidate:
		var payload protocol.ICECandidatePayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if c.webrtc != nil {
			if err := c.webrtc.AddICECandidate(payload.Candidate, payload.SDPMid, payload.SDPMLineIndex); err != nil {
				log.Printf("Failed to add ICE candidate: %v", err)
			}
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// enqueueSample queues one joystick sample for the dispatch loop. When the
// queue is full (controller sleeping through a reaction delay) the sample
// is dropped, matching a depth-limited subscription.
func (s *Server) enqueueSample(sample teleop.Sample) {
	select {
	case s.samples <- sample:
	default:
		log.Printf("Sample queue full, dropping joystick sample")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	// Stop RTP forwarding
	close(c.stopRTP)

	if c.webrtc != nil {
		c.webrtc.Close()
		c.webrtc = nil
	}

	close(c.send)
}
