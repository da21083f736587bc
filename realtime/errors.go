package realtime

import (
	"errors"
	"fmt"
)

const (
	ConnectionError = iota

	ConnectionRefusedError

	DisconnectedError

	ProtocolError

	InvalidURIError

	InvalidStateError

	RetriesExhaustedError

	UnknownChannelError

	EncodingError

	MessageHandlerError

	UnknownError
)

// Error is the typed error returned and reported by the client. Err holds
// the underlying cause when NewError was given an error.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (err *Error) Error() string {
	if err.Message == "" {
		return errorName(err.Code)
	}
	return errorName(err.Code) + ": " + err.Message
}

func (err *Error) Unwrap() error {
	return err.Err
}

// Is matches errors carrying the same code so callers can compare against
// NewError(code) values with errors.Is.
func (err *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == err.Code && (other.Message == "" || other.Message == err.Message)
}

func errorName(errorCode int) string {
	var errorName string

	switch errorCode {
	case ConnectionError:
		errorName = "ConnectionError"
	case ConnectionRefusedError:
		errorName = "ConnectionRefusedError"
	case DisconnectedError:
		errorName = "DisconnectedError"
	case ProtocolError:
		errorName = "ProtocolError"
	case InvalidURIError:
		errorName = "InvalidURIError"
	case InvalidStateError:
		errorName = "InvalidStateError"
	case RetriesExhaustedError:
		errorName = "RetriesExhaustedError"
	case UnknownChannelError:
		errorName = "UnknownChannelError"
	case EncodingError:
		errorName = "EncodingError"
	case MessageHandlerError:
		errorName = "MessageHandlerError"
	default:
		errorName = "UnknownError"
	}

	return errorName
}

// NewError builds an *Error; the optional message may be a string, an error or
// any value printable with %v.
func NewError(errorCode int, message ...interface{}) error {
	if len(message) > 0 {
		cause, _ := message[0].(error)
		return &Error{Code: errorCode, Message: fmt.Sprintf("%v", message[0]), Err: cause}
	}

	return &Error{Code: errorCode}
}

// ErrorCode extracts the code of an *Error, or UnknownError.
func ErrorCode(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return UnknownError
}
