package relay

import (
	"errors"
	"fmt"
)

// ErrCode identifies a relay failure on the wire.
type ErrCode string

const (
	CodeSessionNotFound         ErrCode = "SESSION_NOT_FOUND"
	CodeUnauthorizedRole        ErrCode = "UNAUTHORIZED_ROLE"
	CodeQuestionAlreadyActive   ErrCode = "QUESTION_ALREADY_ACTIVE"
	CodeNoActiveQuestion        ErrCode = "NO_ACTIVE_QUESTION"
	CodeDuplicateResponse       ErrCode = "DUPLICATE_RESPONSE"
	CodeUnknownParticipant      ErrCode = "UNKNOWN_PARTICIPANT"
	CodeCodeGenerationExhausted ErrCode = "CODE_GENERATION_EXHAUSTED"
	CodeInvalidPayload          ErrCode = "INVALID_PAYLOAD"
	CodeUnknownEvent            ErrCode = "UNKNOWN_EVENT"
)

// Error is a recoverable relay failure. It is reported to the originating
// connection only and never broadcast.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so wrapped and freshly built
// errors compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrSessionNotFound         = &Error{Code: CodeSessionNotFound, Message: "session does not exist or has ended"}
	ErrUnauthorizedRole        = &Error{Code: CodeUnauthorizedRole, Message: "caller is not allowed to perform this action"}
	ErrQuestionAlreadyActive   = &Error{Code: CodeQuestionAlreadyActive, Message: "a question is already open"}
	ErrNoActiveQuestion        = &Error{Code: CodeNoActiveQuestion, Message: "no question is open"}
	ErrDuplicateResponse       = &Error{Code: CodeDuplicateResponse, Message: "participant already responded to this question"}
	ErrUnknownParticipant      = &Error{Code: CodeUnknownParticipant, Message: "participant is not registered in this session"}
	ErrCodeGenerationExhausted = &Error{Code: CodeCodeGenerationExhausted, Message: "could not allocate a free session code"}
	ErrInvalidPayload          = &Error{Code: CodeInvalidPayload, Message: "invalid event payload"}
	ErrUnknownEvent            = &Error{Code: CodeUnknownEvent, Message: "unknown event"}
)

// Errorf returns a copy of base with a more specific message.
func Errorf(base *Error, format string, args ...interface{}) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the relay code of err. Non-relay errors map to an empty code.
func CodeOf(err error) ErrCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
