package websocket

import "github.com/koscakluka/ema-access/core/speech"

// Outbound message types.
const (
	typeSpeak   = "speak"
	typeStop    = "stop"
	typeStopAll = "stop_all"
	typePitch   = "pitch"
	typeRate    = "rate"
)

// Inbound message types.
const (
	typeReady     = "ready"
	typeCompleted = "completed"
	typeError     = "error"
)

type speakMessage struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"`
	Text      string             `json:"text"`
	Directive string             `json:"directive"`
	Params    map[string]float64 `json:"params,omitempty"`
}

func newSpeakMessage(request speech.Request) speakMessage {
	msg := speakMessage{
		Type:      typeSpeak,
		ID:        request.UtteranceID,
		Text:      request.Text,
		Directive: request.Directive.String(),
	}
	if len(request.Params) > 0 {
		msg.Params = make(map[string]float64, len(request.Params))
		for param, value := range request.Params {
			msg.Params[string(param)] = value
		}
	}
	return msg
}

type controlMessage struct {
	Type string `json:"type"`
}

type valueMessage struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// incomingMessage covers every inbound type. Fields a type does not use are
// left empty.
type incomingMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`
}
