package nip46

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"bunkerlink/internal/domain"
)

// KindRemoteSigning is the event kind carrying encrypted requests and responses.
const KindRemoteSigning = 24133

// Methods understood by remote signers.
const (
	MethodConnect      = "connect"
	MethodGetPublicKey = "get_public_key"
	MethodSignEvent    = "sign_event"
	MethodNIP44Encrypt = "nip44_encrypt"
	MethodNIP44Decrypt = "nip44_decrypt"
	MethodPing         = "ping"
)

// ResultAuthURL marks a response asking the user to visit the URL carried in
// the error field before the request can complete.
const ResultAuthURL = "auth_url"

// EncodeRequest serializes req. Nil params are sent as an empty array.
func EncodeRequest(req domain.Request) (string, error) {
	if req.Params == nil {
		req.Params = []string{}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeRequest parses a request payload.
func DecodeRequest(s string) (domain.Request, error) {
	var req domain.Request
	if err := json.Unmarshal([]byte(s), &req); err != nil {
		return domain.Request{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if req.ID == "" || req.Method == "" {
		return domain.Request{}, fmt.Errorf("%w: request without id or method", domain.ErrDecode)
	}
	return req, nil
}

// EncodeResponse serializes resp.
func EncodeResponse(resp domain.Response) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type wireResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// DecodeResponse parses a response payload.
func DecodeResponse(s string) (domain.Response, error) {
	var w wireResponse
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if w.ID == "" {
		return domain.Response{}, fmt.Errorf("%w: response without id", domain.ErrDecode)
	}
	return domain.Response{
		ID:     w.ID,
		Result: flatten(w.Result),
		Error:  flatten(w.Error),
	}, nil
}

// IsAuthChallenge reports whether resp asks for out-of-band approval.
func IsAuthChallenge(resp domain.Response) bool {
	return resp.Result == ResultAuthURL && resp.Error != ""
}

// NewEnvelope wraps encrypted content for recipient. The caller signs it.
func NewEnvelope(content string, recipient domain.PublicKey, now time.Time) domain.Event {
	return domain.Event{
		CreatedAt: now.Unix(),
		Kind:      KindRemoteSigning,
		Tags:      []domain.Tag{{"p", recipient.String()}},
		Content:   content,
	}
}

func flatten(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
