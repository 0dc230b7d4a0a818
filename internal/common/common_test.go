package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	require.Equal(t, "203.0.113.5", ClientIP(req))
}

func TestWriteAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAppError(rr, BadRequest("product_id", "product_id is required", errors.New("empty")))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, map[string]any{"field": "product_id"}, body.Error.Details)

	rr = httptest.NewRecorder()
	WriteAppError(rr, &AppError{})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "INTERNAL")
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewAppError("X", "x", http.StatusTeapot, base)
	require.ErrorIs(t, err, base)
	require.True(t, IsAppError(err))
	require.False(t, IsAppError(base))
}
