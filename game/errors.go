package game

import "errors"

var (
	ErrRoomNotFound = errors.New("room-not-found")
	ErrRoomBusy     = errors.New("room-busy")
	ErrLobbyClosed  = errors.New("lobby-closed")
)

var ErrSendBufferFull = errors.New("send-buffer-full")
