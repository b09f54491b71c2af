package ws

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"cipher-chat/internal/models"
)

var errBadSignal = errors.New("malformed call signal")

type callOffer struct {
	To     string                    `json:"to"`
	From   string                    `json:"from"`
	CallID string                    `json:"callId"`
	Signal webrtc.SessionDescription `json:"signal"`
}

type callAnswer struct {
	To     string                    `json:"to"`
	CallID string                    `json:"callId"`
	Signal webrtc.SessionDescription `json:"signal"`
}

type callControl struct {
	To     string `json:"to"`
	CallID string `json:"callId"`
}

type callCandidate struct {
	To        string                  `json:"to"`
	CallID    string                  `json:"callId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// CallSignal is what the callee (or caller) receives.
type CallSignal struct {
	From      string                     `json:"from"`
	CallID    string                     `json:"callId"`
	Signal    *webrtc.SessionDescription `json:"signal,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// CallRelay forwards call-setup signaling to the target user's sessions. It
// holds no call state and never buffers: a signal for an offline user is
// dropped and the caller's own timeout ends the attempt.
type CallRelay struct {
	hub *Hub
	log *slog.Logger
}

func NewCallRelay(hub *Hub, log *slog.Logger) *CallRelay {
	return &CallRelay{hub: hub, log: log}
}

// Relay validates one inbound signaling event from s and forwards it.
func (r *CallRelay) Relay(s *Session, event string, data json.RawMessage) error {
	var (
		to  string
		out = CallSignal{From: s.UserID}
	)

	switch event {
	case models.EventCallUser:
		var in callOffer
		if err := json.Unmarshal(data, &in); err != nil {
			return errBadSignal
		}
		if in.From != "" && in.From != s.UserID {
			return errClaimMismatch
		}
		if in.Signal.Type != webrtc.SDPTypeOffer || in.Signal.SDP == "" {
			return errBadSignal
		}
		to, out.CallID, out.Signal = in.To, in.CallID, &in.Signal
	case models.EventCallAccepted:
		var in callAnswer
		if err := json.Unmarshal(data, &in); err != nil {
			return errBadSignal
		}
		if in.Signal.Type != webrtc.SDPTypeAnswer || in.Signal.SDP == "" {
			return errBadSignal
		}
		to, out.CallID, out.Signal = in.To, in.CallID, &in.Signal
	case models.EventCallRejected, models.EventCallEnded:
		var in callControl
		if err := json.Unmarshal(data, &in); err != nil {
			return errBadSignal
		}
		to, out.CallID = in.To, in.CallID
	case models.EventICECandidate:
		var in callCandidate
		if err := json.Unmarshal(data, &in); err != nil {
			return errBadSignal
		}
		if in.Candidate.Candidate == "" {
			return errBadSignal
		}
		to, out.CallID, out.Candidate = in.To, in.CallID, &in.Candidate
	default:
		return errUnknownEvent
	}

	if to == "" || to == s.UserID || out.CallID == "" {
		return errBadSignal
	}
	if !r.hub.Registry().IsOnline(to) {
		r.log.Debug("call.relay.offline", "event", event, "from", s.UserID, "to", to, "call_id", out.CallID)
		return nil
	}
	r.hub.NotifyUsers(event, out, to)
	return nil
}
