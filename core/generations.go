package core

import (
	"hash/fnv"
	"strings"
	"sync/atomic"
)

const generationSlots = 256

// generations counts invalidations per cache scope. Scopes hash onto a fixed
// set of slots so the table never grows; a collision only makes a load skip
// its cache write.
type generations struct {
	slots [generationSlots]atomic.Uint64
}

func (g *generations) slot(scope string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return &g.slots[h.Sum32()%generationSlots]
}

// current returns the generation of the scope owning key.
func (g *generations) current(key string) uint64 {
	return g.slot(scopeOf(key)).Load()
}

func (g *generations) bump(scope string) {
	g.slot(scope).Add(1)
}

// scopeOf maps a cache key to the unit invalidation works on: the account or
// proposal prefix, the validators family, or the key itself.
func scopeOf(key string) string {
	for _, family := range []string{FamilyAccount + ":", FamilyProposal + ":"} {
		if !strings.HasPrefix(key, family) {
			continue
		}
		rest := key[len(family):]
		if i := strings.IndexByte(rest, ':'); i >= 0 {
			return key[:len(family)+i+1]
		}
	}
	if strings.HasPrefix(key, FamilyValidators+":") {
		return FamilyValidators + ":"
	}
	return key
}
