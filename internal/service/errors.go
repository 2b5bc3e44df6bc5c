package service

import "errors"

var (
	ErrInvalidOrExpiredLink = errors.New("invalid or expired share link")
	ErrMaxUsesExceeded      = errors.New("share link has reached maximum uses")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAccessConfiguration  = errors.New("shared records access is not configured")
	ErrUnsupportedFileType  = errors.New("file type not allowed")
	ErrFileTooLarge         = errors.New("file too large")
	ErrInvalidFileName      = errors.New("invalid file name")
	ErrFileAccessDenied     = errors.New("file access denied")
	ErrNotAuthenticated     = errors.New("user not authenticated")
	ErrRecordNotFound       = errors.New("record not found")
	ErrShareLinkNotFound    = errors.New("share link not found")

	ErrInvalidInput       = errors.New("invalid request")
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is not activated")
	ErrActivationInvalid  = errors.New("activation link invalid or expired")
	ErrAlreadyActivated   = errors.New("account already activated")
)
