package brokererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	e := Protocol("read_registers", "unexpected reply", "got 'E01'")
	assert.Equal(t, "ProtocolError [read_registers]: unexpected reply", e.Error())
}

func TestError_Is(t *testing.T) {
	e1 := Timeout("wait_stop", "no reply before deadline")
	e2 := Timeout("wait_stop", "no reply before deadline")
	e3 := Timeout("wait_stop", "different message")

	assert.True(t, errors.Is(e1, e2))
	assert.False(t, errors.Is(e1, e3))
}

func TestIs_HelperWalksWrappedChain(t *testing.T) {
	base := Connection("dial", "connection refused", nil)
	wrapped := fmt.Errorf("launching backend: %w", base)

	assert.True(t, Is(wrapped, KindConnection))
	assert.False(t, Is(wrapped, KindTimeout))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Connection("dial", "connect failed", cause)
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, 400, KindArgument.HTTPStatus())
	assert.Equal(t, 501, KindNotSupported.HTTPStatus())
	assert.Equal(t, 504, KindTimeout.HTTPStatus())
	assert.Equal(t, 502, KindConnection.HTTPStatus())
	assert.Equal(t, 502, KindProtocol.HTTPStatus())
}

func TestError_MarshalJSON(t *testing.T) {
	e := Argument("parse_address", "bad address literal")
	data, err := e.MarshalJSON()
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"ArgumentError"`)
	assert.Contains(t, string(data), `"message":"bad address literal"`)
}
