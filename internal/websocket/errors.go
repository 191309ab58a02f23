// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrHubStopped   = errors.New("websocket hub is not accepting messages")
)
