package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstant(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: time.Time{}},
		{in: "2025-06-01", want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2025-06-01T12:30:00Z", want: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)},
		{in: "2025-06-01T14:30:00+02:00", want: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)},
		{in: "2025-06-01T12:30:00.123456789Z", want: time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC)},
		{in: "yesterday", wantErr: true},
		{in: "01/06/2025", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstant(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFormatISO(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, "2025-06-01T09:00:00Z", FormatISO(time.Date(2025, 6, 1, 12, 0, 0, 0, loc)))
	assert.Equal(t, "2025-06-01T09:00:00.5Z", FormatISO(time.Date(2025, 6, 1, 9, 0, 0, 500_000_000, time.UTC)))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Hour), c.Advance(time.Hour))
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Text string `json:"text"`
	}

	var b body
	require.NoError(t, DecodeJSON(strings.NewReader(`{"text":"hi"}`), &b, 0))
	assert.Equal(t, "hi", b.Text)

	assert.Error(t, DecodeJSON(strings.NewReader(`{"text":"hi","extra":1}`), &b, 0), "unknown fields")
	assert.ErrorIs(t, DecodeJSON(strings.NewReader(`{"text":"a"}{"text":"b"}`), &b, 0), ErrTrailingData)
	assert.Error(t, DecodeJSON(strings.NewReader(`{"text":"`+strings.Repeat("x", 100)+`"}`), &b, 16), "body over limit")
	assert.Error(t, DecodeJSON(strings.NewReader(``), &b, 0))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "invalid_input", "text is empty")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ErrorBody{Error: "invalid_input", Message: "text is empty"}, got)
}
