package protocol

import "encoding/json"

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeJoy          = "joy"
	TypeTwist        = "twist"
	TypeError        = "error"
)

// Error codes
const (
	ErrBaseDisconnected = "BASE_DISCONNECTED"
	ErrCamera           = "CAMERA_ERROR"
	ErrInvalidMessage   = "INVALID_MESSAGE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload describes the server's view of the platform connections
type StatusPayload struct {
	BaseConnected   bool   `json:"base_connected"`
	CameraConnected bool   `json:"camera_connected"`
	ControlProtocol string `json:"control_protocol,omitempty"`
	VideoProtocol   string `json:"video_protocol,omitempty"`
}

// SDPPayload for offer/answer messages
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload for ICE candidate messages
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

// JoyPayload carries one joystick sample: held buttons and raw axis values
// in controller order.
type JoyPayload struct {
	Buttons []bool    `json:"buttons"`
	Axes    []float64 `json:"axes"`
}

// TwistPayload carries one published velocity command.
type TwistPayload struct {
	LinearX  float64 `json:"linear_x"`
	LinearY  float64 `json:"linear_y"`
	AngularZ float64 `json:"angular_z"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
