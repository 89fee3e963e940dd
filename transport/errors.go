package transport

import "errors"

var (
	errConnClosed      = errors.New("transport: connection closed")
	errSendQueueFull   = errors.New("transport: send queue full")
	errSendRateLimited = errors.New("transport: outbound send rate exceeded")
)
