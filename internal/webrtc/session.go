// Package webrtc carries the camera feed to an operator's browser.
package webrtc

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"
)

// Session is one peer connection to an operator, carrying a single H264
// video track fed with RTP packets from the camera.
type Session struct {
	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticRTP
	onICE      func(*webrtc.ICECandidate)
	mu         sync.Mutex
	closed     bool
}

// Config for a WebRTC session
type Config struct {
	ICEServers []string // STUN/TURN server URLs
}

// DefaultConfig uses a public STUN server, enough for LAN and most NAT
// setups.
func DefaultConfig() Config {
	return Config{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
	}
}

// NewSession creates a peer connection with an attached video track. onICE
// is invoked for each local candidate so the caller can trickle them to the
// operator over the signaling channel.
func NewSession(cfg Config, onICE func(*webrtc.ICECandidate)) (*Session, error) {
	config := webrtc.Configuration{}
	for _, url := range cfg.ICEServers {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video",
		"base-camera",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add video track: %w", err)
	}

	s := &Session{
		pc:         pc,
		videoTrack: videoTrack,
		onICE:      onICE,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && s.onICE != nil {
			s.onICE(c)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("WebRTC: connection state %s", state)
	})

	return s, nil
}

// CreateOffer produces the local SDP offer, waiting for ICE gathering to
// finish so the offer carries all host candidates.
func (s *Session) CreateOffer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(s.pc)
	return s.pc.LocalDescription().SDP, nil
}

// SetAnswer applies the operator's SDP answer.
func (s *Session) SetAnswer(sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// AddICECandidate adds a remote candidate received over signaling.
func (s *Session) AddICECandidate(candidate, sdpMid string, sdpMLineIndex uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ice := webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}
	if err := s.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

// VideoTrack returns the outbound video track for RTP writers.
func (s *Session) VideoTrack() *webrtc.TrackLocalStaticRTP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoTrack
}

// Close closes the peer connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pc != nil {
		return s.pc.Close()
	}
	return nil
}
