// Package camera pulls the platform's onboard RTSP camera feed and exposes
// it as a stream of raw RTP packets.
package camera

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
)

const (
	packetBuffer     = 500
	rtspTimeout      = 10 * time.Second
	maxReconnectWait = 30 * time.Second
)

// Feed is a resilient RTSP subscription to the onboard camera. Packets are
// dropped when the consumer falls behind; live video tolerates gaps better
// than latency.
type Feed struct {
	url     string
	packets chan []byte
	stopCh  chan struct{}

	mu      sync.Mutex
	client  *gortsplib.Client
	stopped bool
}

// NewFeed validates the RTSP URL and prepares a feed. Start establishes the
// connection.
func NewFeed(rtspURL string) (*Feed, error) {
	if _, err := base.ParseURL(rtspURL); err != nil {
		return nil, err
	}

	return &Feed{
		url:     rtspURL,
		packets: make(chan []byte, packetBuffer),
		stopCh:  make(chan struct{}),
	}, nil
}

// Packets returns the channel carrying serialized RTP packets.
func (f *Feed) Packets() <-chan []byte {
	return f.packets
}

// Start connects to the camera and begins streaming. On connection loss the
// feed reconnects on its own with exponential backoff.
func (f *Feed) Start() error {
	return f.connect()
}

func (f *Feed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := base.ParseURL(f.url)
	if err != nil {
		return err
	}

	client := &gortsplib.Client{
		Transport: func() *gortsplib.Transport {
			t := gortsplib.TransportTCP
			return &t
		}(),
		ReadTimeout:  rtspTimeout,
		WriteTimeout: rtspTimeout,
		OnDecodeError: func(err error) {
			log.Printf("Camera: decode error: %v", err)
		},
	}

	if err := client.Start(u.Scheme, u.Host); err != nil {
		return err
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return err
	}

	videoMedia, err := findVideoMedia(desc)
	if err != nil {
		client.Close()
		return err
	}

	if _, err := client.Setup(desc.BaseURL, videoMedia, 0, 0); err != nil {
		client.Close()
		return err
	}

	client.OnPacketRTPAny(func(media *description.Media, forma format.Format, pkt *rtp.Packet) {
		buf, err := pkt.Marshal()
		if err != nil {
			return
		}
		packet := make([]byte, len(buf))
		copy(packet, buf)

		select {
		case f.packets <- packet:
		case <-f.stopCh:
		default:
			// Consumer behind, drop the packet.
		}
	})

	if _, err := client.Play(nil); err != nil {
		client.Close()
		return err
	}

	f.client = client
	log.Printf("Camera: connected and playing")

	go f.watchConnection()
	return nil
}

// findVideoMedia picks the H264/H265 track, falling back to the first video
// media the camera announces.
func findVideoMedia(desc *description.Session) (*description.Media, error) {
	for _, media := range desc.Medias {
		for _, forma := range media.Formats {
			switch forma.(type) {
			case *format.H264, *format.H265:
				return media, nil
			}
		}
	}
	for _, media := range desc.Medias {
		if media.Type == description.MediaTypeVideo && len(media.Formats) > 0 {
			return media, nil
		}
	}
	return nil, errors.New("no video track in RTSP description")
}

// watchConnection waits for the session to die and reconnects with
// exponential backoff, unless the feed was closed.
func (f *Feed) watchConnection() {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()

	if client == nil {
		return
	}

	err := client.Wait()

	select {
	case <-f.stopCh:
		return
	default:
	}

	if err != nil {
		log.Printf("Camera: connection lost: %v", err)
	}

	for attempt := 1; ; attempt++ {
		delay := min(time.Duration(1<<uint(attempt-1))*time.Second, maxReconnectWait)
		log.Printf("Camera: reconnect attempt %d in %v", attempt, delay)

		select {
		case <-f.stopCh:
			return
		case <-time.After(delay):
		}

		if err := f.connect(); err != nil {
			log.Printf("Camera: reconnect failed: %v", err)
			continue
		}

		log.Printf("Camera: reconnected")
		return
	}
}

// Close stops the feed and closes the packet channel.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	client := f.client
	f.mu.Unlock()

	close(f.stopCh)
	close(f.packets)

	if client != nil {
		client.Close()
	}
	return nil
}
