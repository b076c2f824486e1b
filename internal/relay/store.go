package relay

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const storeShards = 16

// Batch is a group removed from the Store. The caller owns Items.
type Batch struct {
	Key        string
	Items      []MediaItem
	CreatedAt  time.Time
	Standalone bool
}

// GroupInfo is a read-only view of a buffered group.
type GroupInfo struct {
	Key       string
	Items     int
	CreatedAt time.Time
}

type group struct {
	items      []MediaItem
	createdAt  time.Time
	standalone bool
}

type storeShard struct {
	mu     sync.Mutex
	groups map[string]*group
}

// Store maps group keys to buffered items.
//
// Each operation is atomic with respect to other operations on the same key and
// only locks the key's shard, so unrelated groups never wait on each other.
// No method performs I/O while holding a lock.
type Store struct {
	shards [storeShards]storeShard
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].groups = make(map[string]*group)
	}
	return s
}

func (s *Store) shard(key string) *storeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%storeShards]
}

// AppendOrCreate appends item to the group at key, creating the group if absent,
// and returns the group's item count afterwards.
//
// If a pop won the race for key, the item starts a fresh group under the same key.
func (s *Store) AppendOrCreate(key string, item MediaItem, standalone bool) int {
	if item.ArrivedAt.IsZero() {
		item.ArrivedAt = time.Now()
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	g, ok := sh.groups[key]
	if !ok {
		g = &group{createdAt: item.ArrivedAt, standalone: standalone}
		sh.groups[key] = g
	}
	g.items = append(g.items, item)
	return len(g.items)
}

// PopIfPresent removes and returns the group at key. The second of two racing
// calls gets ok=false; callers treat that as already handled.
func (s *Store) PopIfPresent(key string) (Batch, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	g, ok := sh.groups[key]
	if ok {
		delete(sh.groups, key)
	}
	sh.mu.Unlock()
	if !ok {
		return Batch{}, false
	}
	return Batch{Key: key, Items: g.items, CreatedAt: g.createdAt, Standalone: g.standalone}, true
}

// SweepExpired pops every group created more than ttl before now.
func (s *Store) SweepExpired(now time.Time, ttl time.Duration) []Batch {
	var out []Batch
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, g := range sh.groups {
			if now.Sub(g.createdAt) > ttl {
				delete(sh.groups, key)
				out = append(out, Batch{Key: key, Items: g.items, CreatedAt: g.createdAt, Standalone: g.standalone})
			}
		}
		sh.mu.Unlock()
	}
	return out
}

// Has reports whether a group is buffered under key.
func (s *Store) Has(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.groups[key]
	return ok
}

// Len returns the number of buffered groups.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.groups)
		sh.mu.Unlock()
	}
	return n
}

// Snapshot lists buffered groups, oldest first.
func (s *Store) Snapshot() []GroupInfo {
	var out []GroupInfo
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, g := range sh.groups {
			out = append(out, GroupInfo{Key: key, Items: len(g.items), CreatedAt: g.createdAt})
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
