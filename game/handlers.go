package game

import (
	"boardship/battle"
	"boardship/domain"
	"boardship/protocol"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const joinTimeout = 10 * time.Second

type GameHandler struct {
	lobby       Lobby
	userGetter  UserGetter
	matchLoader MatchLoader
	roomOptions RoomOptions
	upgrader    websocket.Upgrader
}

// NewGameHandler serves the game routes. userGetter may be nil, players are then named by
// their token. matchLoader may be nil, in which case rooms the lobby dropped are gone for good.
func NewGameHandler(lobby Lobby, userGetter UserGetter, matchLoader MatchLoader, roomOptions RoomOptions) *GameHandler {
	return &GameHandler{
		lobby:       lobby,
		userGetter:  userGetter,
		matchLoader: matchLoader,
		roomOptions: roomOptions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are checked by the server middleware before any route runs
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// userAndCodec resolves what every websocket route needs before upgrading. It writes the
// error response itself and reports whether the request may go on.
func (h *GameHandler) userAndCodec(ctx *gin.Context) (domain.User, protocol.Codec, bool) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return domain.User{}, nil, false
	}

	codec, err := protocol.CodecByName(ctx.Query("codec"))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": protocol.ErrUnknownCodec.Error()})
		return domain.User{}, nil, false
	}

	if h.userGetter == nil {
		// no users table, the token is all we know about the player
		username := ctx.GetString("username")
		if username == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user-not-found"})
			return domain.User{}, nil, false
		}
		return domain.User{Id: id, Username: username}, codec, true
	}

	user, err := h.userGetter.GetUserById(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user-not-found"})
			return domain.User{}, nil, false
		}
		log.Error().Err(err).Str("player", id).Msg("failed to get user")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed-to-get-user"})
		return domain.User{}, nil, false
	}
	return user, codec, true
}

func (h *GameHandler) CreateGameHandler(ctx *gin.Context) {
	mode, err := battle.ParseMode(ctx.DefaultQuery("mode", string(battle.ModeClassic)))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": battle.ErrInvalidMode.Error()})
		return
	}
	user, codec, ok := h.userAndCodec(ctx)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("player", user.Id).Msg("websocket upgrade failed")
		return
	}
	socket := NewGorillaWebSocketWrapper(conn, codec.Binary())

	player := NewUserPlayer(user, codec)
	room, err := NewRoom(player, mode, h.roomOptions)
	if err != nil {
		socket.CloseWithReason(protocol.Reason(err))
		return
	}
	if err := h.lobby.RequestAddAndRunRoom(ctx.Request.Context(), room); err != nil {
		player.CancelAndRelease()
		socket.CloseWithReason(ErrLobbyClosed.Error())
		return
	}

	go player.WritePump(socket)
	go player.ReadPump(socket)
}

func (h *GameHandler) JoinGameHandler(ctx *gin.Context) {
	roomId := ctx.Param("roomid")
	user, codec, ok := h.userAndCodec(ctx)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("player", user.Id).Msg("websocket upgrade failed")
		return
	}
	socket := NewGorillaWebSocketWrapper(conn, codec.Binary())

	player := NewUserPlayer(user, codec)
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), joinTimeout)
	defer cancel()

	if err := h.join(reqCtx, roomId, player); err != nil {
		log.Debug().Err(err).Str("room", roomId).Str("player", user.Id).Msg("join refused")
		player.CancelAndRelease()
		socket.CloseWithReason(joinErrorReason(err))
		return
	}

	go player.WritePump(socket)
	go player.ReadPump(socket)
}

// join seats player in the running room, or brings the room back from storage first.
func (h *GameHandler) join(ctx context.Context, roomId string, player Player) error {
	jreq := roomJoinRequest{roomId: roomId, player: player, errChan: make(chan error, 1)}
	h.lobby.ForwardPlayerJoinRequestToRoom(ctx, jreq)
	err := awaitJoin(ctx, jreq)
	if !errors.Is(err, ErrRoomNotFound) || h.matchLoader == nil {
		return err
	}

	rec, err := h.matchLoader.LoadMatch(ctx, roomId)
	if err != nil {
		if errors.Is(err, domain.ErrMatchNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	room, err := RestoreRoom(rec, h.roomOptions)
	if err != nil {
		return err
	}
	jreq = roomJoinRequest{roomId: roomId, player: player, errChan: make(chan error, 1)}
	if err := h.lobby.RequestRestoreRoom(ctx, room, jreq); err != nil {
		return err
	}
	return awaitJoin(ctx, jreq)
}

func awaitJoin(ctx context.Context, jreq roomJoinRequest) error {
	select {
	case err := <-jreq.errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func joinErrorReason(err error) string {
	for _, known := range []error{ErrRoomNotFound, ErrRoomBusy, ErrLobbyClosed} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return protocol.Reason(err)
}

// SnapshotHandler answers the authoritative view of a room for the authenticated player,
// from the running room or, failing that, from storage.
func (h *GameHandler) SnapshotHandler(ctx *gin.Context) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	roomId := ctx.Param("roomid")

	view, err := h.snapshot(ctx.Request.Context(), roomId, id)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, view)
	case errors.Is(err, ErrRoomNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ErrRoomNotFound.Error()})
	case errors.Is(err, battle.ErrNotParticipant):
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": battle.ErrNotParticipant.Error()})
	case errors.Is(err, ErrRoomBusy):
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrRoomBusy.Error()})
	default:
		log.Error().Err(err).Str("room", roomId).Str("player", id).Msg("failed to get snapshot")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed-to-get-snapshot"})
	}
}

func (h *GameHandler) snapshot(ctx context.Context, roomId, viewer string) (battle.View, error) {
	sreq := snapshotRequest{roomId: roomId, viewer: viewer, resp: make(chan snapshotResponse, 1)}
	h.lobby.ForwardSnapshotRequestToRoom(ctx, sreq)

	var resp snapshotResponse
	select {
	case resp = <-sreq.resp:
	case <-ctx.Done():
		return battle.View{}, ctx.Err()
	}
	if !errors.Is(resp.err, ErrRoomNotFound) || h.matchLoader == nil {
		return resp.view, resp.err
	}

	rec, err := h.matchLoader.LoadMatch(ctx, roomId)
	if err != nil {
		if errors.Is(err, domain.ErrMatchNotFound) {
			return battle.View{}, ErrRoomNotFound
		}
		return battle.View{}, err
	}
	m, err := battle.Restore(rec, h.roomOptions.matchConfig(rec.Mode))
	if m == nil {
		return battle.View{}, err
	}
	return m.Snapshot(viewer)
}
