package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// APIError is a non-2xx response from the generative language API. It carries
// both the HTTP status and the canonical gRPC status named in the body.
type APIError struct {
	HTTPCode   int
	RetryDelay time.Duration

	st *status.Status
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: http %d %s: %s", e.HTTPCode, e.st.Code(), e.st.Message())
}

// HTTPStatus returns the HTTP status code of the response.
func (e *APIError) HTTPStatus() int { return e.HTTPCode }

// GRPCStatus lets status.FromError and status.Code see the canonical code.
func (e *APIError) GRPCStatus() *status.Status { return e.st }

// Code returns the canonical code of the error.
func (e *APIError) Code() codes.Code { return e.st.Code() }

// errorEnvelope is the outer shape of an API error body.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// errorHeader holds the fields of the error body that google.rpc.Status does
// not model: the HTTP code is in "code" and the canonical name in "status".
type errorHeader struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

var unmarshalOpts = protojson.UnmarshalOptions{DiscardUnknown: true}

// parseAPIError decodes an error response body. Bodies that are not in the
// documented shape still produce an APIError with a code derived from the
// HTTP status.
func parseAPIError(httpCode int, body []byte) *APIError {
	var env errorEnvelope
	var hdr errorHeader
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		_ = json.Unmarshal(env.Error, &hdr)
	}

	pb := &rpcstatus.Status{}
	if len(env.Error) > 0 {
		if err := unmarshalOpts.Unmarshal(env.Error, pb); err != nil {
			// Unresolvable detail types fail the whole decode; keep the header.
			pb = &rpcstatus.Status{}
		}
	}

	pb.Code = int32(canonicalCode(httpCode, hdr.Status))
	pb.Message = hdr.Message
	if pb.Message == "" {
		pb.Message = http.StatusText(httpCode)
		if len(env.Error) == 0 && len(body) > 0 {
			pb.Message = truncate(string(body), 256)
		}
	}

	apiErr := &APIError{
		HTTPCode: httpCode,
		st:       status.FromProto(pb),
	}
	for _, d := range apiErr.st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
			apiErr.RetryDelay = ri.GetRetryDelay().AsDuration()
		}
	}
	return apiErr
}

// canonicalCode maps the status name of the body, or failing that the HTTP
// status, to a gRPC code.
func canonicalCode(httpCode int, name string) codes.Code {
	if v, ok := code.Code_value[name]; ok {
		return codes.Code(v)
	}

	switch httpCode {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case http.StatusInternalServerError:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
