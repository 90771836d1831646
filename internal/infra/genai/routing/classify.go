// Package routing decides what a failed generation call means for the key pool.
//
// This package contains:
//   - Classify: maps call errors to QuotaExceeded, AuthInvalid or Other
//   - Policy: records failures against the pool and rotates keys
package routing

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the category of a failed call.
type Class int

const (
	ClassOther Class = iota
	ClassQuotaExceeded
	ClassAuthInvalid
)

func (c Class) String() string {
	switch c {
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassAuthInvalid:
		return "auth_invalid"
	default:
		return "other"
	}
}

// httpStatuser is implemented by errors that carry an HTTP status code.
type httpStatuser interface {
	HTTPStatus() int
}

var (
	quotaPatterns = []string{
		"quota",
		"rate limit",
		"resource exhausted",
		"resource_exhausted",
		"too many requests",
		"429",
	}

	authPatterns = []string{
		"api key not valid",
		"invalid api key",
		"api_key_invalid",
		"unauthorized",
		"unauthenticated",
		"forbidden",
		"permission denied",
		"permission_denied",
		"401",
		"403",
	}
)

// Classify determines the category of err. It never panics; nil and
// unrecognized errors are ClassOther.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return ClassQuotaExceeded
		case codes.Unauthenticated, codes.PermissionDenied:
			return ClassAuthInvalid
		}
	}

	var hs httpStatuser
	if errors.As(err, &hs) {
		switch hs.HTTPStatus() {
		case http.StatusTooManyRequests:
			return ClassQuotaExceeded
		case http.StatusUnauthorized, http.StatusForbidden:
			return ClassAuthInvalid
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return ClassQuotaExceeded
		}
	}
	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return ClassAuthInvalid
		}
	}

	return ClassOther
}

// ShouldRotate reports whether a failure of class c is tied to the key itself.
func ShouldRotate(c Class) bool {
	return c == ClassQuotaExceeded || c == ClassAuthInvalid
}
