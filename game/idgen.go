package game

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const roomIdLength = 8

type idGen struct {
	ids    map[string]struct{}
	locker sync.Mutex
}

func NewIdGen() idGen {
	return idGen{ids: map[string]struct{}{}}
}

// Generate returns a short room code that no live room uses.
func (g *idGen) Generate() string {
	g.locker.Lock()
	defer g.locker.Unlock()
	for {
		id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:roomIdLength])
		if _, taken := g.ids[id]; taken {
			continue
		}
		g.ids[id] = struct{}{}
		return id
	}
}

func (g *idGen) Reserve(id string) bool {
	g.locker.Lock()
	defer g.locker.Unlock()
	if _, taken := g.ids[id]; taken {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

func (g *idGen) Dispose(id string) {
	g.locker.Lock()
	delete(g.ids, id)
	g.locker.Unlock()
}
