package hub

import (
	"errors"

	"github.com/evalgo-org/diagramhub/message"
)

var (
	errNotRegistered = errors.New(message.CodeNotRegistered)
	errNotInRoom     = errors.New(message.CodeNotInRoom)
	errRoomFull      = errors.New(message.CodeRoomFull)
)
