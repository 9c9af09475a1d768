package core

// RoomID derives the canonical room identity for a pair of users. The
// participants are ordered before joining, so RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}

// roomTable tracks which connections are subscribed to which rooms. It is
// only touched from the reactor goroutine.
type roomTable struct {
	members map[string]map[Conn]struct{}
	byConn  map[Conn]map[string]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{
		members: make(map[string]map[Conn]struct{}),
		byConn:  make(map[Conn]map[string]struct{}),
	}
}

func (t *roomTable) join(roomID string, conn Conn) {
	room := t.members[roomID]
	if room == nil {
		room = make(map[Conn]struct{})
		t.members[roomID] = room
	}
	room[conn] = struct{}{}

	joined := t.byConn[conn]
	if joined == nil {
		joined = make(map[string]struct{})
		t.byConn[conn] = joined
	}
	joined[roomID] = struct{}{}
}

func (t *roomTable) leaveAll(conn Conn) {
	for roomID := range t.byConn[conn] {
		if room, ok := t.members[roomID]; ok {
			delete(room, conn)
			if len(room) == 0 {
				delete(t.members, roomID)
			}
		}
	}
	delete(t.byConn, conn)
}

func (t *roomTable) subscribers(roomID string) map[Conn]struct{} {
	return t.members[roomID]
}
