package model

import "errors"

var (
	ErrTokenExpired  = errors.New("session expired")
	ErrTokenMismatch = errors.New("refresh token mismatch")
)
