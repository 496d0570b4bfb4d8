package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gopkg.in/go-playground/assert.v1"

	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v (%q)", err, sc.Text())
		}
		out = append(out, entry)
	}
	return out
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "INFO", false)

	var seenID string
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = requestctx.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/players?page=2&email=a@b.c", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if _, err := uuid.Parse(seenID); err != nil {
		t.Fatalf("request id is not a UUID: %q", seenID)
	}
	assert.Equal(t, seenID, rr.Header().Get(HeaderRequestID))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	in, out := lines[0], lines[1]
	assert.Equal(t, "http_request", in["message"])
	assert.Equal(t, seenID, in["request_id"])
	assert.Equal(t, "GET", in["method"])
	assert.Equal(t, "/api/v1/players", in["path"])
	assert.Equal(t, "[REDACTED]", in["client_host"])

	query := in["query_params"].(map[string]interface{})
	assert.Equal(t, "2", query["page"])
	assert.Equal(t, "[REDACTED]", query["email"])

	assert.Equal(t, "http_response", out["message"])
	assert.Equal(t, seenID, out["request_id"])
	assert.Equal(t, float64(http.StatusTeapot), out["status_code"])
	if _, ok := out["process_time_ms"].(float64); !ok {
		t.Errorf("process_time_ms missing: %v", out)
	}
}

func TestRequestLogger_UniqueIDs(t *testing.T) {
	log := logger.NewWithWriter(&bytes.Buffer{}, "ERROR", false)
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rr.Header().Get(HeaderRequestID)
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}

func TestHandlePanic(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		wantType string
	}{
		{"error value", errors.New("boom"), "*errors.errorString"},
		{"string value", "boom", "string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "INFO", false)

			h := RequestLogger(log)(HandlePanic(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.value)
			})))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/leagues", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)

			var body internalErrorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			assert.Equal(t, "An unexpected error occurred. Please try again later.", body.Detail)
			assert.Equal(t, rr.Header().Get(HeaderRequestID), body.RequestID)
			assert.Equal(t, tt.wantType, body.ErrorType)

			lines := logLines(t, &buf)
			var found bool
			for _, l := range lines {
				if l["message"] == "unhandled_exception" {
					found = true
					assert.Equal(t, "error", l["level"])
					assert.Equal(t, body.RequestID, l["request_id"])
				}
				if l["message"] == "http_response" {
					assert.Equal(t, float64(500), l["status_code"])
				}
			}
			assert.Equal(t, true, found)
		})
	}
}

func TestHandlePanic_AfterHeadersWritten(t *testing.T) {
	log := logger.NewWithWriter(&bytes.Buffer{}, "INFO", false)
	h := HandlePanic(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("partial"))
		panic("late")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "partial", rr.Body.String())
}

func TestHandlePanic_NoRequestID(t *testing.T) {
	log := logger.NewWithWriter(&bytes.Buffer{}, "INFO", false)
	h := HandlePanic(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("no id")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	var body internalErrorBody
	json.Unmarshal(rr.Body.Bytes(), &body)
	assert.Equal(t, "unknown", body.RequestID)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/players", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
		exposed := rr.Header().Get("Access-Control-Expose-Headers")
		for _, hdr := range []string{"X-Request-Id", "X-Ratelimit-Remaining"} {
			if !strings.Contains(exposed, hdr) {
				t.Errorf("expected %s in exposed headers %q", hdr, exposed)
			}
		}
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/players", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/leagues", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
