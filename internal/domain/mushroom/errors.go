package mushroom

import (
	"errors"
	"fmt"
)

// Kind categorises why an analysis did not produce a result.
type Kind string

const (
	KindRead       Kind = "read"
	KindTransport  Kind = "transport"
	KindMalformed  Kind = "malformed_response"
	KindValidation Kind = "validation"
)

// Sentinels for errors.Is matching against a *Failure of the same kind.
var (
	ErrRead              = errors.New("image read failed")
	ErrTransport         = errors.New("model endpoint unreachable")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrValidation        = errors.New("model response failed validation")
)

// UserMessage is the only failure text shown to end users. Details stay in logs.
const UserMessage = "Failed to analyze the image. The mushroom may not be identifiable, or an API error occurred. Please try again."

// Failure is returned by every stage of an analysis. Detail is diagnostic
// and meant for logs only.
type Failure struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Op, f.Kind)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is lets errors.Is(err, ErrTransport) and friends match by kind.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrRead:
		return f.Kind == KindRead
	case ErrTransport:
		return f.Kind == KindTransport
	case ErrMalformedResponse:
		return f.Kind == KindMalformed
	case ErrValidation:
		return f.Kind == KindValidation
	}
	return false
}

func ReadFailure(op string, err error) *Failure {
	return &Failure{Kind: KindRead, Op: op, Err: err}
}

func TransportFailure(op string, err error) *Failure {
	return &Failure{Kind: KindTransport, Op: op, Err: err}
}

func MalformedFailure(op, detail string, err error) *Failure {
	return &Failure{Kind: KindMalformed, Op: op, Detail: detail, Err: err}
}

func ValidationFailure(op, detail string) *Failure {
	return &Failure{Kind: KindValidation, Op: op, Detail: detail}
}

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}
