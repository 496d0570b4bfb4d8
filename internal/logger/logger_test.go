package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/go-playground/assert.v1"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"CRITICAL", zerolog.FatalLevel},
		{"garbage", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestZeroLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "INFO", false)
	l.Infof("started on port %d", 8000)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "started on port 8000", entry["message"])
}

func TestSetLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "INFO", false)
	l.SetLevel("ERROR")
	l.Warnf("ignored")
	assert.Equal(t, 0, buf.Len())

	l.Errorf("kept")
	if buf.Len() == 0 {
		t.Errorf("expected error entry to be written")
	}
}

func TestRedact(t *testing.T) {
	in := map[string]interface{}{
		"request_id":  "abc",
		"Email":       "a@b.c",
		"client_host": "10.0.0.5",
		"query_params": map[string]string{
			"name": "Alice",
			"page": "2",
		},
		"nested": map[string]interface{}{
			"password": "secret",
			"inner":    map[string]interface{}{"bio": "hi", "ok": 1},
		},
	}

	out := Redact(in)

	assert.Equal(t, "abc", out["request_id"])
	assert.Equal(t, redacted, out["Email"])
	assert.Equal(t, redacted, out["client_host"])

	qp := out["query_params"].(map[string]interface{})
	assert.Equal(t, redacted, qp["name"])
	assert.Equal(t, "2", qp["page"])

	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, redacted, nested["password"])
	inner := nested["inner"].(map[string]interface{})
	assert.Equal(t, redacted, inner["bio"])
	assert.Equal(t, 1, inner["ok"])

	// исходная карта не меняется
	assert.Equal(t, "a@b.c", in["Email"])
}

func TestEventRedactsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "INFO", false)
	l.Event(zerolog.InfoLevel, "user_registered", map[string]interface{}{
		"player_id": "42",
		"email":     "a@b.c",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	assert.Equal(t, "user_registered", entry["message"])
	assert.Equal(t, "42", entry["player_id"])
	assert.Equal(t, "[REDACTED]", entry["email"])

	buf.Reset()
	l.Event(zerolog.DebugLevel, "hidden", nil)
	assert.Equal(t, 0, buf.Len())
}
