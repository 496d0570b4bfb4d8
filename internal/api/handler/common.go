package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

const (
	contentTypeJSON = "application/json"
	apiVersion      = "1.0.0"
)

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type InternalErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
	ErrorType string `json:"error_type"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// в сообщениях используем имена полей из JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("password", validatePassword)
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validatePassword requires an upper case letter, a lower case letter and a digit.
func validatePassword(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, c := range fl.Field().String() {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	return upper && lower && digit
}

func decodeAndValidate(r *http.Request, v interface{}) *apperror.AppError {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.BadRequest("invalid JSON format")
	}
	return validateStruct(v)
}

func validateStruct(v interface{}) *apperror.AppError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(err.Error())
	}

	errMsgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		errMsgs = append(errMsgs, fmt.Sprintf("field %s: %s", fe.Field(), rule))
	}
	return apperror.Validation(strings.Join(errMsgs, "; "))
}

type responder struct {
	logger logger.Logger
}

func (h responder) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Api-Version", apiVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

// respondError renders handled errors as {"detail": ...}. Anything that is not
// an AppError is logged and hidden behind a generic 500.
func (h responder) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind == apperror.KindInternal {
		requestID := requestctx.RequestID(r.Context())
		h.logger.Errorf("Unhandled error: request_id=%s path=%s error=%v", requestID, r.URL.Path, err)
		h.respondJSON(w, http.StatusInternalServerError, InternalErrorResponse{
			Detail:    apperror.UnexpectedMessage,
			RequestID: requestID,
			ErrorType: apperror.TypeName(err),
		})
		return
	}

	switch appErr.Kind {
	case apperror.KindAuthentication:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case apperror.KindRateLimit:
		w.Header().Set("Retry-After", fmt.Sprint(apperror.RetryAfterSeconds))
	}
	h.respondJSON(w, appErr.Status(), ErrorResponse{Detail: appErr.Message})
}
