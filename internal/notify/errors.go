package notify

// Error is a delivery error
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidRecipient = &Error{Message: "invalid recipient"}
	ErrUnknownTemplate  = &Error{Message: "unknown template"}
	ErrNotDelivered     = &Error{Message: "message not delivered"}
)
