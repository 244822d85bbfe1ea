package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorKind classifies why a bridge call failed. It is part of the
// structured result so that an agent can decide whether retrying makes sense.
type ErrorKind string

const (
	// KindLaunchFailure: the provider process could not be started
	// (missing executable or image, permission denied).
	KindLaunchFailure ErrorKind = "launch_failure"
	// KindHandshakeTimeout: the provider did not finish initialize and
	// tools/list within the connect timeout.
	KindHandshakeTimeout ErrorKind = "handshake_timeout"
	// KindUnknownOperation: the requested operation is not in the
	// discovered capability set.
	KindUnknownOperation ErrorKind = "unknown_operation"
	// KindProviderError: the provider accepted the call but reported a failure.
	KindProviderError ErrorKind = "provider_error"
	// KindTransportError: the channel closed unexpectedly, a message was
	// malformed, or the provider stopped answering.
	KindTransportError ErrorKind = "transport_error"
	// KindInvalidRequest: the request was rejected before any process was launched.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindCancelled: the caller's context ended while the call was in flight.
	KindCancelled ErrorKind = "cancelled"
)

// callError carries a classified failure from inside a session up to the
// public boundary, where it is flattened into a Result.
type callError struct {
	Kind ErrorKind
	Err  error
}

func (e *callError) Error() string { return e.Err.Error() }
func (e *callError) Unwrap() error { return e.Err }

func newCallError(kind ErrorKind, format string, args ...any) *callError {
	return &callError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// kindOf extracts the ErrorKind of err, defaulting to transport_error for
// anything that was not classified on the way up.
func kindOf(err error) ErrorKind {
	var ce *callError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransportError
}

// classifyHandshake maps an error from initialize or tools/list.
// hctx is the connect-timeout context, parent the caller's context.
func classifyHandshake(parent, hctx context.Context, phase string, err error) *callError {
	if parent.Err() != nil {
		return &callError{Kind: KindCancelled, Err: fmt.Errorf("%s: %w", phase, parent.Err())}
	}
	if errors.Is(hctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &callError{Kind: KindHandshakeTimeout, Err: fmt.Errorf("%s: provider did not respond within the connect timeout", phase)}
	}
	if mcp.IsUnsupportedProtocolVersion(err) {
		return &callError{Kind: KindTransportError, Err: fmt.Errorf("%s: malformed handshake: %w", phase, err)}
	}
	return &callError{Kind: KindTransportError, Err: fmt.Errorf("%s: %w", phase, err)}
}

// classifyCall maps an error from tools/call. Transport-level failures are
// wrapped by mcp-go in *transport.Error; JSON-RPC error responses arrive
// unwrapped and mean the provider itself rejected the call.
func classifyCall(parent, cctx context.Context, err error) *callError {
	if parent.Err() != nil {
		return &callError{Kind: KindCancelled, Err: fmt.Errorf("call: %w", parent.Err())}
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &callError{Kind: KindTransportError, Err: errors.New("call: provider did not respond within the call timeout")}
	}
	var te *transport.Error
	if errors.As(err, &te) {
		return &callError{Kind: KindTransportError, Err: fmt.Errorf("call: %w", err)}
	}
	if isMalformedResult(err) {
		return &callError{Kind: KindTransportError, Err: fmt.Errorf("call: malformed response: %w", err)}
	}
	return &callError{Kind: KindProviderError, Err: err}
}

// mcp.ParseCallToolResult reports shape problems with plain errors.
var malformedResultPrefixes = []string{
	"response is nil",
	"failed to unmarshal response",
	"content is missing",
	"content is not",
}

func isMalformedResult(err error) bool {
	msg := err.Error()
	for _, p := range malformedResultPrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

// unknownOperationMessage renders the self-correction hint returned when
// an operation is not offered by the provider. Every discovered name is
// listed, in discovery order.
func unknownOperationMessage(operation string, available []string) string {
	quoted := make([]string, len(available))
	for i, name := range available {
		quoted[i] = "'" + name + "'"
	}
	return fmt.Sprintf("Tool '%s' not found. Available tools: [%s]", operation, strings.Join(quoted, ","))
}
