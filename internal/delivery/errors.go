package delivery

import "errors"

var (
	ErrNotFound       = errors.New("message not found")
	ErrForbidden      = errors.New("not allowed for this user")
	ErrInvalidMessage = errors.New("invalid message")
	ErrMessageDeleted = errors.New("message deleted")
)
