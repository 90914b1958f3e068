package nip46_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/nip46"
)

func TestEncodeRequestShape(t *testing.T) {
	s, err := nip46.EncodeRequest(domain.Request{ID: "1", Method: nip46.MethodPing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","method":"ping","params":[]}`, s)

	req, err := nip46.DecodeRequest(s)
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Method)
	assert.Empty(t, req.Params)
}

func TestDecodeRequestRejectsIncomplete(t *testing.T) {
	for _, s := range []string{`{}`, `{"id":"1"}`, `not json`} {
		_, err := nip46.DecodeRequest(s)
		require.ErrorIs(t, err, domain.ErrDecode, s)
	}
}

func TestDecodeResponseResultForms(t *testing.T) {
	cases := []struct {
		in     string
		result string
		errMsg string
	}{
		{`{"id":"a","result":"ok"}`, "ok", ""},
		{`{"id":"a","result":"ack","error":""}`, "ack", ""},
		{`{"id":"a","error":"denied"}`, "", "denied"},
		{`{"id":"a","result":null,"error":"denied"}`, "", "denied"},
		{`{"id":"a","result":{"kind": 1, "content": "x"}}`, `{"kind":1,"content":"x"}`, ""},
		{`{"id":"a","result":42}`, "42", ""},
	}
	for _, c := range cases {
		resp, err := nip46.DecodeResponse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, "a", resp.ID)
		assert.Equal(t, c.result, resp.Result, c.in)
		assert.Equal(t, c.errMsg, resp.Error, c.in)
	}
}

func TestDecodeResponseRejectsGarbage(t *testing.T) {
	for _, s := range []string{``, `[]`, `{"result":"ok"}`, `{"id":`} {
		_, err := nip46.DecodeResponse(s)
		require.ErrorIs(t, err, domain.ErrDecode, s)
	}
}

func TestIsAuthChallenge(t *testing.T) {
	assert.True(t, nip46.IsAuthChallenge(domain.Response{ID: "a", Result: "auth_url", Error: "https://approve"}))
	assert.False(t, nip46.IsAuthChallenge(domain.Response{ID: "a", Result: "auth_url"}))
	assert.False(t, nip46.IsAuthChallenge(domain.Response{ID: "a", Result: "ok"}))
}

func TestNewEnvelope(t *testing.T) {
	var key domain.PublicKey
	key[0] = 0xab
	now := time.Unix(1700000000, 0)
	ev := nip46.NewEnvelope("ct", key, now)
	assert.Equal(t, nip46.KindRemoteSigning, ev.Kind)
	assert.Equal(t, int64(1700000000), ev.CreatedAt)
	assert.True(t, ev.TaggedTo(key))
	assert.Equal(t, "ct", ev.Content)
}
