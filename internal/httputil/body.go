// Package httputil frames requests and responses for the API handlers:
// body parsing, the success/error envelope, rate-limit headers, and CORS.
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

var (
	// ErrEmptyBody indicates a request without a body.
	ErrEmptyBody = errors.New("request body is empty")
	// ErrInvalidUTF8 indicates a body that is not UTF-8.
	ErrInvalidUTF8 = errors.New("request body is not valid UTF-8")
	// ErrInvalidJSON indicates a body that is not JSON.
	ErrInvalidJSON = errors.New("request body is not valid JSON")
	// ErrBodyTooLarge indicates a body above MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body is too large")
)

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, ErrEmptyBody
	}
	raw, errRead := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if errRead != nil {
		return nil, ErrInvalidJSON
	}
	if len(raw) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyBody
	}
	if !utf8.Valid(raw) {
		return nil, ErrInvalidUTF8
	}
	return raw, nil
}

// ParseBody decodes a JSON object body.
func ParseBody(c *gin.Context) (map[string]any, error) {
	raw, errRead := readBody(c)
	if errRead != nil {
		return nil, errRead
	}
	var out map[string]any
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil || out == nil {
		return nil, ErrInvalidJSON
	}
	return out, nil
}

// BindBody decodes a JSON body into dst.
func BindBody(c *gin.Context, dst any) error {
	raw, errRead := readBody(c)
	if errRead != nil {
		return errRead
	}
	if errUnmarshal := json.Unmarshal(raw, dst); errUnmarshal != nil {
		return ErrInvalidJSON
	}
	return nil
}

// BodyError maps a ParseBody/BindBody failure to an APIError.
func BodyError(err error) *APIError {
	switch {
	case errors.Is(err, ErrEmptyBody):
		return Validation("Request body is required")
	case errors.Is(err, ErrInvalidUTF8):
		return Validation("Request body must be UTF-8 encoded")
	case errors.Is(err, ErrBodyTooLarge):
		return &APIError{Kind: KindValidation, Status: http.StatusRequestEntityTooLarge, Message: "Request body is too large"}
	default:
		return Validation("Invalid JSON")
	}
}
