package live

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the microphone may not be opened.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceNotFound is returned when no usable audio device exists.
	ErrDeviceNotFound = errors.New("audio device not found")

	// ErrNotSupported is returned when the platform lacks audio capability.
	ErrNotSupported = errors.New("audio not supported on this platform")

	// ErrCredentialMissing is returned when no API key is configured.
	ErrCredentialMissing = errors.New("api key not configured")

	// ErrOffline is returned when the endpoint cannot be reached.
	ErrOffline = errors.New("network unreachable")

	// ErrConnectionFailed is returned when the remote channel cannot be opened or breaks.
	ErrConnectionFailed = errors.New("remote connection failed")

	// ErrSessionClosed is reported when the remote endpoint ends a live session.
	ErrSessionClosed = errors.New("session closed by remote")

	// ErrChannelClosed is returned by sends on a closed channel.
	ErrChannelClosed = errors.New("remote channel closed")

	// ErrSendQueueFull is returned when an outbound frame is dropped.
	ErrSendQueueFull = errors.New("send queue full")
)

// Category is the structured classification attached to a Failure.
type Category string

const (
	CategoryPermission   Category = "permission"
	CategoryDevice       Category = "device"
	CategoryNotSupported Category = "not_supported"
	CategoryCredential   Category = "credential"
	CategoryNetwork      Category = "network"
	CategoryConnection   Category = "connection"
)

// Failure wraps a raw error from a device, probe or transport with a category.
type Failure struct {
	Category Category
	Op       string
	Err      error
}

func (f *Failure) Error() string {
	if f.Op == "" {
		return fmt.Sprintf("%s: %v", f.Category, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Category, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel of the failure's category.
func (f *Failure) Is(target error) bool {
	return target == sentinelFor(f.Category)
}

// Fail builds a Failure. A nil err is replaced with the category's sentinel.
func Fail(category Category, op string, err error) error {
	if err == nil {
		err = sentinelFor(category)
	}
	return &Failure{Category: category, Op: op, Err: err}
}

func sentinelFor(c Category) error {
	switch c {
	case CategoryPermission:
		return ErrPermissionDenied
	case CategoryDevice:
		return ErrDeviceNotFound
	case CategoryNotSupported:
		return ErrNotSupported
	case CategoryCredential:
		return ErrCredentialMissing
	case CategoryNetwork:
		return ErrOffline
	default:
		return ErrConnectionFailed
	}
}

type ErrorKind string

const (
	ErrorNone                ErrorKind = "NONE"
	ErrorMicPermissionDenied ErrorKind = "MIC_PERMISSION_DENIED"
	ErrorMicNotFound         ErrorKind = "MIC_NOT_FOUND"
	ErrorNotSupported        ErrorKind = "NOT_SUPPORTED"
	ErrorAPIKeyMissing       ErrorKind = "API_KEY_MISSING"
	ErrorAPIConnectionFailed ErrorKind = "API_CONNECTION_FAILED"
	ErrorNetwork             ErrorKind = "NETWORK_ERROR"
	ErrorSessionEnded        ErrorKind = "SESSION_ENDED"
	ErrorUnknown             ErrorKind = "UNKNOWN"
)

type rule struct {
	kind     ErrorKind
	category Category
	sentinel error
	patterns []string
}

// Evaluated top to bottom; the first match wins.
var rules = []rule{
	{ErrorMicPermissionDenied, CategoryPermission, ErrPermissionDenied,
		[]string{"permission denied", "notallowederror", "not allowed", "access denied", "permission dismissed"}},
	{ErrorMicNotFound, CategoryDevice, ErrDeviceNotFound,
		[]string{"notfounderror", "device not found", "no device", "requested device not found", "devices not found", "no microphone"}},
	{ErrorNotSupported, CategoryNotSupported, ErrNotSupported,
		[]string{"not supported", "notsupportederror", "no backend", "not implemented", "unsupported"}},
	{ErrorAPIKeyMissing, CategoryCredential, ErrCredentialMissing,
		[]string{"api key", "apikey", "api_key", "unauthenticated", "unauthorized", "credential"}},
	{ErrorNetwork, CategoryNetwork, ErrOffline,
		[]string{"network", "offline", "no such host", "unreachable", "failed to fetch", "i/o timeout"}},
	{ErrorAPIConnectionFailed, CategoryConnection, ErrConnectionFailed,
		[]string{"websocket", "connection", "connect", "handshake", "bad handshake", "eof"}},
}

// Classify maps a raw failure to exactly one ErrorKind. It checks the
// structured Failure category and wrapped sentinels first, then falls back to
// message patterns. A nil error classifies as ErrorNone.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}

	var f *Failure
	if errors.As(err, &f) {
		for _, r := range rules {
			if r.category == f.Category {
				return r.kind
			}
		}
	}
	for _, r := range rules {
		if errors.Is(err, r.sentinel) {
			return r.kind
		}
	}

	if errors.Is(err, ErrSessionClosed) {
		return ErrorSessionEnded
	}

	// Transport errors rank below the permission to credential patterns.
	var netErr net.Error
	transport := errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.kind == ErrorNetwork && transport {
			return ErrorNetwork
		}
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return r.kind
			}
		}
	}
	return ErrorUnknown
}

// Recovery says what the presentation layer should offer for an error.
type Recovery string

const (
	RecoveryNone              Recovery = "none"
	RecoveryRetry             Recovery = "retry"
	RecoveryRecheckPermission Recovery = "recheck_permission"
	RecoveryOperator          Recovery = "operator"
)

func (k ErrorKind) Recovery() Recovery {
	switch k {
	case ErrorNone:
		return RecoveryNone
	case ErrorMicPermissionDenied:
		return RecoveryRecheckPermission
	case ErrorNotSupported, ErrorAPIKeyMissing:
		return RecoveryOperator
	default:
		return RecoveryRetry
	}
}

// Retryable reports whether the user can simply try again.
func (k ErrorKind) Retryable() bool {
	return k.Recovery() == RecoveryRetry
}

// Description is the user-facing text for an ErrorKind.
type Description struct {
	Title   string
	Message string
	Action  string
}

var descriptions = map[ErrorKind]Description{
	ErrorMicPermissionDenied: {"Microphone Blocked", "I can't hear you! Please ask a grown-up to allow microphone access.", "Allow Microphone"},
	ErrorMicNotFound:         {"No Microphone Found", "I can't find your microphone! Please plug one in or ask a grown-up for help.", "Try Again"},
	ErrorNotSupported:        {"Not Supported", "This device can't play or record sound here. Please ask a grown-up for help.", "OK"},
	ErrorAPIKeyMissing:       {"Setup Needed", "The app needs to be set up! Please ask a grown-up for help.", "OK"},
	ErrorAPIConnectionFailed: {"Connection Problem", "I couldn't connect to my brain! Let's try again.", "Try Again"},
	ErrorNetwork:             {"No Internet", "I can't reach the internet! Please check your connection.", "Try Again"},
	ErrorSessionEnded:        {"Call Ended", "Our call got disconnected. Want to call again?", "Call Again"},
	ErrorUnknown:             {"Oops!", "Something went wrong. Let's try again!", "Try Again"},
}

func (k ErrorKind) Describe() Description {
	return descriptions[k]
}
