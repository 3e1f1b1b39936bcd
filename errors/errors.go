package errors

import "fmt"

var (
	ErrEmptyUsername     = fmt.Errorf("username cannot be empty")
	ErrUsernameTaken     = fmt.Errorf("username is already taken")
	ErrMalformedEnvelope = fmt.Errorf("malformed envelope")
	ErrFrameTooLarge     = fmt.Errorf("frame exceeds maximum size")
	ErrEmptyFilePayload  = fmt.Errorf("file payload is empty")
)
