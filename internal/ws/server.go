package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	duelservice "duelgo/internal/services/duel"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be < pongWait
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev-only
}

// ConnContext identifies the connection for message handlers.
type ConnContext struct {
	GameCode   string
	PlayerName string
	Server     *WsServer
}

type WsServer struct {
	hub     *Hub
	router  *Router
	duelSvc duelservice.IDuelService
}

func NewWsServer(h *Hub, duelSvc duelservice.IDuelService) *WsServer {
	srv := &WsServer{
		hub:     h,
		router:  NewRouter(),
		duelSvc: duelSvc,
	}
	srv.registerHandlers() // ← all WS message types configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	gameCode := ginCtx.Query("game_code")
	player := ginCtx.Query("player")
	if gameCode == "" || player == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "game_code and player are required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	// ─────────────────── Client joined ────────────────────────
	conn := &clientConn{rawConn: rawConn}
	s.hub.Join(gameCode, player, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.duelSvc.OnConnectionOpened(ctx, gameCode, player)
	cancel()

	go s.reader(gameCode, player, conn)
	go s.pinger(conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 attack — body is the bare target name, e.g. "HEAD" ----------------
	Register(
		s.router,
		"attack",
		func(ctx context.Context, cc *ConnContext, target string) (any, error) {
			return nil, s.duelSvc.Attack(ctx, cc.GameCode, cc.PlayerName, target)
		},
	)

	// 🔹 chat --------------------------------------------------------------
	Register(
		s.router,
		"chat",
		func(ctx context.Context, cc *ConnContext, req ChatBody) (any, error) {
			if req.Message == "" {
				return nil, errors.New("empty chat message")
			}
			return nil, s.duelSvc.Chat(ctx, cc.GameCode, cc.PlayerName, req.Message)
		},
	)
}

func (s *WsServer) reader(gameCode, player string, conn *clientConn) {
	defer func() {
		// Leave reports false when this conn was already swapped out by
		// a reconnect; the fresh connection must not inherit our close.
		if s.hub.Leave(gameCode, conn) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.duelSvc.OnConnectionClosed(ctx, gameCode, player)
			cancel()
		}
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{GameCode: gameCode, PlayerName: player, Server: s}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		res, err := s.safeDispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"type":"error","message":...}, sender only ----
		if err != nil {
			_ = conn.writeJSON(errorMessage(err.Error()))
			continue
		}
		if res != nil {
			_ = conn.writeJSON(res)
		}
	}
}

// safeDispatch converts a handler panic into a generic server error for
// the sender. One bad message can never take down the room.
func (s *WsServer) safeDispatch(ctx context.Context, cc *ConnContext, env Envelope) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("ws.handler_panic",
				zap.String("game", cc.GameCode),
				zap.String("player", cc.PlayerName),
				zap.Any("panic", r))
			res, err = nil, errors.New("server error")
		}
	}()
	return s.router.dispatch(ctx, cc, env)
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			conn.close()
			return
		}
	}
}
