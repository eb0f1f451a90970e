package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "NotFound", "Could not find a place for the provided id.")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NotFound", body.Code)
	assert.Equal(t, "Could not find a place for the provided id.", body.Error)
}

func TestDecode(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, "x", dst.Title)

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"owner":"u2"}`))
	assert.Error(t, Decode(req, &dst))

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"title":"a"}{"title":"b"}`))
	assert.Error(t, Decode(req, &dst))
}

func TestMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Message(rec, "Deleted place.")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Deleted place."}`, rec.Body.String())
}
