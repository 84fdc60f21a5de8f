package wire

import (
	"encoding/json"
	"fmt"

	"github.com/quantfold/tradecore/internal/domain"
)

// RequestKind discriminates the request envelope.
type RequestKind string

const (
	KindRegister         RequestKind = "register"
	KindSubmitOrder      RequestKind = "submit_order"
	KindCancelOrder      RequestKind = "cancel_order"
	KindUpdateBrackets   RequestKind = "update_brackets"
	KindRegisterStreamer RequestKind = "register_streamer"
)

// Request is the envelope for every inbound message. CallbackID correlates
// the eventual Response; zero means one-way, no reply is sent.
type Request struct {
	Kind       RequestKind     `json:"kind"`
	CallbackID uint64          `json:"callback_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// OneWay reports whether the sender expects no reply.
func (r *Request) OneWay() bool { return r.CallbackID == 0 }

// Response is the envelope for every reply and pushed message.
type Response struct {
	CallbackID uint64          `json:"callback_id,omitempty"`
	OK         bool            `json:"ok"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload establishes the connection's run mode. It must be the first
// request on a connection.
type RegisterPayload struct {
	Account string `json:"account"`
	Mode    string `json:"mode"`
}

// SubmitOrderPayload carries a full order intent.
type SubmitOrderPayload struct {
	Order domain.Order `json:"order"`
}

// CancelOrderPayload asks for a pending order to be withdrawn.
type CancelOrderPayload struct {
	OrderID string `json:"order_id"`
}

// UpdateBracketsPayload replaces the protective levels on an open position.
type UpdateBracketsPayload struct {
	Account    string           `json:"account"`
	SymbolCode string           `json:"symbol_code"`
	Brackets   *domain.Brackets `json:"brackets"`
}

// RegisterStreamerPayload opens a cadence push of consolidated slices.
type RegisterStreamerPayload struct {
	Port       int    `json:"port"`
	IntervalMS int    `json:"interval_ms"`
	Account    string `json:"account,omitempty"`
}

// NewRequest builds an envelope around a typed payload.
func NewRequest(kind RequestKind, callbackID uint64, payload any) (Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("wire: marshal %s payload: %w", kind, err)
	}
	return Request{Kind: kind, CallbackID: callbackID, Payload: raw}, nil
}

// EncodeRequest serializes a request for framing.
func EncodeRequest(req Request) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wire: encode request: %w", err)
	}
	return raw, nil
}

// DecodeRequest parses a raw frame into the request envelope. The payload
// stays raw until the handler knows the kind.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	if req.Kind == "" {
		return Request{}, fmt.Errorf("wire: request has no kind: %w", domain.ErrUnknownRequest)
	}
	return req, nil
}

// DecodePayload parses the envelope payload into dst.
func DecodePayload(req Request, dst any) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("wire: %s request has empty payload", req.Kind)
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", req.Kind, err)
	}
	return nil
}

// OKResponse builds a success reply carrying an optional payload.
func OKResponse(callbackID uint64, payload any) (Response, error) {
	resp := Response{CallbackID: callbackID, OK: true}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("wire: marshal response payload: %w", err)
		}
		resp.Payload = raw
	}
	return resp, nil
}

// ErrResponse builds a failure reply.
func ErrResponse(callbackID uint64, reason string) Response {
	return Response{CallbackID: callbackID, OK: false, Reason: reason}
}

// DecodeResponse parses a raw frame into dst.
func DecodeResponse(frame []byte, dst *Response) error {
	if err := json.Unmarshal(frame, dst); err != nil {
		return fmt.Errorf("wire: decode response: %w", err)
	}
	return nil
}

// EncodeResponse serializes a response for framing.
func EncodeResponse(resp Response) ([]byte, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("wire: encode response: %w", err)
	}
	return raw, nil
}
