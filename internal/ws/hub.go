package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub keeps the live connection set of every room, keyed by game code.
// It is the connection registry: the duel service broadcasts through it
// and never touches raw connections.
type Hub struct {
	rooms sync.Map // game code -> *room

	emptyMu sync.RWMutex
	onEmpty func(gameCode string)
}

func NewHub() *Hub { return &Hub{} }

// SetOnEmpty registers the callback fired when the last connection of a
// room disappears (normal close or broadcast eviction). Set once at
// wiring time, before any traffic.
func (h *Hub) SetOnEmpty(fn func(gameCode string)) {
	h.emptyMu.Lock()
	h.onEmpty = fn
	h.emptyMu.Unlock()
}

// Join registers the connection in the room under the player name,
// swapping out any previous connection for the same player.
func (h *Hub) Join(gameCode, player string, c *clientConn) {
	r, _ := h.rooms.LoadOrStore(gameCode, newRoom())
	r.(*room).add(c, player)
}

// Leave drops the connection. It reports whether the connection was
// still the registered one for its player; false means it had already
// been replaced by a reconnect and the caller must not treat the close
// as the player leaving.
func (h *Hub) Leave(gameCode string, c *clientConn) bool {
	v, ok := h.rooms.Load(gameCode)
	if !ok {
		return false
	}
	wasMember, empty := v.(*room).remove(c)
	if empty {
		h.dropRoom(gameCode)
	}
	return wasMember
}

// Broadcast marshals payload once and fans it out to every connection in
// the room. Failed connections are evicted; the rest still receive the
// message.
func (h *Hub) Broadcast(gameCode string, payload any) {
	v, ok := h.rooms.Load(gameCode)
	if !ok {
		return
	}
	msg, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("ws.broadcast_marshal", zap.String("game", gameCode), zap.Error(err))
		return
	}
	if v.(*room).broadcast(msg) {
		h.dropRoom(gameCode)
	}
}

// Unicast delivers payload to a single player's connection.
func (h *Hub) Unicast(gameCode, player string, payload any) error {
	v, ok := h.rooms.Load(gameCode)
	if !ok {
		return ErrNoSuchPlayer
	}
	msg, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	empty, err := v.(*room).unicast(player, msg)
	if empty {
		h.dropRoom(gameCode)
	}
	return err
}

// CloseRoom tears the room down, closing every connection. Used when a
// duel finishes or the presence order empties.
func (h *Hub) CloseRoom(gameCode string) {
	if v, ok := h.rooms.LoadAndDelete(gameCode); ok {
		v.(*room).closeAll()
	}
}

func (h *Hub) dropRoom(gameCode string) {
	h.rooms.Delete(gameCode)

	h.emptyMu.RLock()
	fn := h.onEmpty
	h.emptyMu.RUnlock()
	if fn != nil {
		fn(gameCode)
	}
}
