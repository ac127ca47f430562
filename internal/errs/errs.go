package errs

import "errors"

// Доменные сентинель-ошибки для маппинга в HTTP коды в handlers.
var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceNotConnected = errors.New("device not connected")
	ErrFrameNotFound      = errors.New("no frame available")
	ErrInvalidToken       = errors.New("invalid device token")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrNotJPEG            = errors.New("image must be JPEG format")
	ErrNotImage           = errors.New("image must be PNG or JPEG format")
)
