package session

import "errors"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrRefreshReused = errors.New("refresh token already used")
)
