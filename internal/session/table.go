package session

import "net"

// Table is the connection table: every live session keyed by client ID and
// by remote address, plus the ban list. It is owned by the transport and
// touched only under the transport's lock.
type Table struct {
	byID   map[uint32]*Connection
	byAddr map[string]*Connection
	order  []uint32 // insertion order, for stable iteration

	banned map[string]bool

	nextID uint32
	max    int
}

// NewTable creates an empty table admitting at most max connections.
func NewTable(max int) *Table {
	return &Table{
		byID:   make(map[uint32]*Connection),
		byAddr: make(map[string]*Connection),
		banned: make(map[string]bool),
		nextID: 1,
		max:    max,
	}
}

// Len returns the number of live connections.
func (t *Table) Len() int { return len(t.byID) }

// Full reports whether the table is at capacity.
func (t *Table) Full() bool { return len(t.byID) >= t.max }

// Add allocates an ID and inserts a new connection. Returns false when the
// table is full or the address is already connected.
func (t *Table) Add(addr *net.UDPAddr, now int64) (*Connection, bool) {
	key := addr.String()
	if t.Full() || t.byAddr[key] != nil {
		return nil, false
	}

	c := NewConnection(t.nextID, addr, now)
	t.nextID++

	t.byID[c.ID] = c
	t.byAddr[key] = c
	t.order = append(t.order, c.ID)
	return c, true
}

// Insert places a pre-built connection (the client side's record of the
// server, which carries a fixed ID). Returns false on capacity or
// duplicate address.
func (t *Table) Insert(c *Connection) bool {
	if t.Full() || t.byAddr[c.AddrKey] != nil || t.byID[c.ID] != nil {
		return false
	}
	t.byID[c.ID] = c
	t.byAddr[c.AddrKey] = c
	t.order = append(t.order, c.ID)
	return true
}

// ByID looks a connection up by client ID.
func (t *Table) ByID(id uint32) *Connection { return t.byID[id] }

// ByAddr looks a connection up by canonical address string.
func (t *Table) ByAddr(key string) *Connection { return t.byAddr[key] }

// Remove deletes a connection and returns it for resource release.
func (t *Table) Remove(id uint32) *Connection {
	c := t.byID[id]
	if c == nil {
		return nil
	}
	delete(t.byID, id)
	delete(t.byAddr, c.AddrKey)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return c
}

// All iterates live connections in insertion order. The callback must not
// mutate the table; collect IDs and remove after iteration instead.
func (t *Table) All(fn func(*Connection)) {
	for _, id := range t.order {
		if c := t.byID[id]; c != nil {
			fn(c)
		}
	}
}

// IDs returns a snapshot of live connection IDs in insertion order.
func (t *Table) IDs() []uint32 {
	out := make([]uint32, len(t.order))
	copy(out, t.order)
	return out
}

// Ban marks a host refused for the life of the process. Callers key by IP,
// not ip:port — a reconnecting client binds a fresh ephemeral port.
func (t *Table) Ban(host string) { t.banned[host] = true }

// IsBanned reports whether a host has been banned.
func (t *Table) IsBanned(host string) bool { return t.banned[host] }
