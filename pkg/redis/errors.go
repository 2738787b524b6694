package redis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrInvalidCredentials           = errors.New("invalid redis service credentials")
	ErrClosed                       = errors.New("redis client is closed")
	ErrNilHandler                   = errors.New("nil message handler")
	ErrNotConfirmed                 = errors.New("redis subscription not confirmed in time")
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrConnection       = errors.New("redis connection failed")
	ErrCommand          = errors.New("redis command failed")
	ErrAttemptsExceeded = errors.New("redis optimistic lock attempts exceeded")
	ErrProtocol         = errors.New("redis transaction reply inconsistent")
	ErrHandler          = errors.New("redis message handler failed")
	ErrEncoding         = errors.New("redis value encoding failed")
)

// ErrorKind classifies store-facing failures.
type ErrorKind uint8

const (
	KindConnection ErrorKind = iota + 1
	KindCommand
	KindAttemptsExceeded
	KindProtocol
	KindHandler
	KindEncoding
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindCommand:
		return ErrCommand
	case KindAttemptsExceeded:
		return ErrAttemptsExceeded
	case KindProtocol:
		return ErrProtocol
	case KindHandler:
		return ErrHandler
	case KindEncoding:
		return ErrEncoding
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown redis error"
}

// Error is a failure of a store operation with the context it happened in.
// The underlying cause, if any, is available through errors.Unwrap.
type Error struct {
	Kind    ErrorKind
	Op      string
	Key     string
	Channel string
	Attempt int
	Args    []string
	Replies []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": op=")
		b.WriteString(e.Op)
	}
	if e.Key != "" {
		b.WriteString(" key=")
		b.WriteString(strconv.Quote(e.Key))
	}
	if e.Channel != "" {
		b.WriteString(" channel=")
		b.WriteString(strconv.Quote(e.Channel))
	}
	if e.Attempt > 0 {
		b.WriteString(" attempt=")
		b.WriteString(strconv.Itoa(e.Attempt))
	}
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, " args=%q", e.Args)
	}
	if len(e.Replies) > 0 {
		fmt.Fprintf(&b, " replies=%q", e.Replies)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
