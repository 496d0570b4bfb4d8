package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

type internalErrorBody struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
	ErrorType string `json:"error_type"`
}

// HandlePanic turns a panic anywhere below into a logged 500 with the
// request id and no internal detail.
func HandlePanic(log EventLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				requestID := requestctx.RequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}
				errType := panicType(p)

				log.Event(zerolog.ErrorLevel, "unhandled_exception", map[string]interface{}{
					"request_id":    requestID,
					"method":        r.Method,
					"path":          r.URL.Path,
					"error_type":    errType,
					"error_message": fmt.Sprint(p),
				})

				// ответ уже начат: дописать JSON нельзя
				if rec.wroteHeader {
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(internalErrorBody{
					Detail:    apperror.UnexpectedMessage,
					RequestID: requestID,
					ErrorType: errType,
				})
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func panicType(p interface{}) string {
	if err, ok := p.(error); ok {
		return apperror.TypeName(err)
	}
	return fmt.Sprintf("%T", p)
}
