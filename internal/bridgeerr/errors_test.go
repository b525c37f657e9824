package bridgeerr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SetsDefaultStatus(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:       http.StatusBadRequest,
		KindUpstreamTimeout:  http.StatusBadGateway,
		KindUpstreamConnect:  http.StatusBadGateway,
		KindTranslationError: http.StatusInternalServerError,
		KindStreamAborted:    http.StatusInternalServerError,
		KindConfigError:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		e := New(kind, "boom")
		assert.Equal(t, want, e.StatusCode, "kind=%s", kind)
	}
}

func TestWithStatus_OverridesUpstreamStatus(t *testing.T) {
	e := Newf(KindUpstreamStatus, "upstream returned status %d", 503).WithStatus(503)
	assert.Equal(t, 503, e.StatusCode)
}

func TestWrap_PreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Wrap(cause, KindUpstreamConnect, "connecting to upstream")
	assert.Same(t, cause, errors.Unwrap(e))
	assert.Contains(t, e.Error(), "connection refused")
}

func TestAs_FindsWrappedError(t *testing.T) {
	original := New(KindBadRequest, "bad")
	wrapped := errors.New("context: " + original.Error())
	_, ok := As(wrapped)
	assert.False(t, ok)

	found, ok := As(original)
	require.True(t, ok)
	assert.Equal(t, original, found)

	viaFmtWrap := fmtErrorfWrap(original)
	found2, ok2 := As(viaFmtWrap)
	require.True(t, ok2)
	assert.Equal(t, original, found2)
}

func fmtErrorfWrap(err error) error {
	return &wrapper{inner: err}
}

type wrapper struct{ inner error }

func (w *wrapper) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapper) Unwrap() error { return w.inner }

func TestToBody_MapsKindToAnthropicErrorType(t *testing.T) {
	cases := map[Kind]string{
		KindBadRequest:       "invalid_request_error",
		KindUpstreamTimeout:  "api_error",
		KindUpstreamConnect:  "api_error",
		KindUpstreamStatus:   "api_error",
		KindTranslationError: "api_error",
		KindStreamAborted:    "api_error",
	}
	for kind, want := range cases {
		body := New(kind, "msg").ToBody()
		assert.Equal(t, "error", body.Type)
		assert.Equal(t, want, body.Error.Type, "kind=%s", kind)
		assert.Equal(t, "msg", body.Error.Message)
	}
}

func TestWriteGin_WritesStatusAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	New(KindBadRequest, "messages must not be empty").WithField("messages").WriteGin(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request_error", body.Error.Type)
	assert.Equal(t, "messages must not be empty", body.Error.Message)
}

func TestMarshalJSON_MatchesToBody(t *testing.T) {
	e := New(KindTranslationError, "bad shape")
	body, err := json.Marshal(e)
	require.NoError(t, err)

	want, err := json.Marshal(e.ToBody())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(body))
}

func TestWithField_RecordsFieldName(t *testing.T) {
	e := New(KindBadRequest, "missing field").WithField("messages")
	assert.Equal(t, "messages", e.Field)
}
