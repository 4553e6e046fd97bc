package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNoSuchPlayer = errors.New("no live connection for player")

// room holds the live connections of one duel, each tagged with the
// player name it was identified as. At most one live connection exists
// per player; a reconnect swaps old for new.
type room struct {
	mu    sync.RWMutex
	conns map[*clientConn]string // conn -> player name
}

func newRoom() *room { return &room{conns: map[*clientConn]string{}} }

// add registers the connection under the player name. Any previous
// connection for the same player is closed and dropped (reconnect swap).
func (r *room) add(c *clientConn, player string) {
	var stale []*clientConn
	r.mu.Lock()
	for old, p := range r.conns {
		if p == player && old != c {
			delete(r.conns, old)
			stale = append(stale, old)
		}
	}
	r.conns[c] = player
	r.mu.Unlock()

	for _, old := range stale {
		old.close()
	}
}

// remove drops the connection if it is still a member. It reports
// whether it was, so a reader whose conn was already swapped out by a
// reconnect does not trigger leave handling for the fresh connection.
func (r *room) remove(c *clientConn) (wasMember, empty bool) {
	r.mu.Lock()
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		return false, false
	}
	delete(r.conns, c)
	empty = len(r.conns) == 0
	r.mu.Unlock()

	c.close()
	return true, empty
}

// broadcast writes msg to every connection. The member set is snapshot
// first so the I/O happens outside the lock; connections that fail the
// write are evicted. Returns whether the evictions emptied the room.
func (r *room) broadcast(msg []byte) (empty bool) {
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var failed []*clientConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.remove(c)
	}
	// A failed conn may already have been removed by its own reader
	// between the snapshot and the eviction, so re-check membership
	// rather than trusting the last remove's report.
	if len(failed) > 0 {
		r.mu.RLock()
		empty = len(r.conns) == 0
		r.mu.RUnlock()
	}
	return empty
}

// unicast writes msg to the player's connection only. A failed write
// evicts that connection.
func (r *room) unicast(player string, msg []byte) (empty bool, err error) {
	var target *clientConn
	r.mu.RLock()
	for c, p := range r.conns {
		if p == player {
			target = c
			break
		}
	}
	r.mu.RUnlock()

	if target == nil {
		return false, ErrNoSuchPlayer
	}
	if err := target.write(websocket.TextMessage, msg); err != nil {
		_, empty = r.remove(target)
		return empty, err
	}
	return false, nil
}

// closeAll closes every connection. Used on room teardown.
func (r *room) closeAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = map[*clientConn]string{}
	r.mu.Unlock()

	for c := range conns {
		c.close()
	}
}
