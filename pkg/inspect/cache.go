package inspect

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/kworder/pkg/bytecode"
)

// Digest is a sha256 of a code buffer, or of a whole frame.
type Digest [32]byte

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func codeDigest(code []byte) Digest {
	return sha256.Sum256(code)
}

// DigestOf returns the digest used to key anonymous procedures.
func DigestOf(code []byte) Digest {
	return codeDigest(code)
}

// FrameDigest identifies code together with its constant pool. Keyword names
// come from the pool, so two frames with identical code but different pools
// get different digests. It fails when the pool holds values msgpack cannot
// encode.
func FrameDigest(code []byte, consts []any) (Digest, error) {
	h := sha256.New()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(code)))
	h.Write(n[:])
	h.Write(code)

	enc := msgpack.NewEncoder(h)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(consts); err != nil {
		return Digest{}, fmt.Errorf("digesting constant pool: %w", err)
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// CacheStats reports cache activity.
type CacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

// namesKey locates memoized names within one decoded procedure.
type namesKey struct {
	offset int
	frame  Digest
}

type cacheEntry struct {
	identity string
	digest   Digest
	stream   *bytecode.Stream
	names    map[namesKey][]string
}

// Cache memoizes decoded streams by instruction set and procedure identity,
// and extracted names by call offset and frame digest. An identity whose code
// digest changes is re-decoded. Entries are evicted oldest first once the
// cache is full.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	size    int
	entries map[string]*cacheEntry
	order   []string
	hits    int
	misses  int

	group singleflight.Group
}

// NewCache creates a cache holding at most size procedures (minimum 1).
func NewCache(size int) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{
		size:    size,
		entries: make(map[string]*cacheEntry),
	}
}

func entryKey(set *bytecode.InstructionSet, identity string) string {
	return set.Name + "\x00" + identity
}

// Stream returns the decoded stream for identity, decoding code on a miss.
// Concurrent misses for the same identity and code share one decode.
func (c *Cache) Stream(identity string, code []byte, set *bytecode.InstructionSet) (*bytecode.Stream, error) {
	key, digest := entryKey(set, identity), codeDigest(code)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.digest == digest {
		c.hits++
		c.mu.Unlock()
		return e.stream, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(key+"@"+digest.String(), func() (any, error) {
		s, err := set.Decode(code)
		if err != nil {
			return nil, err
		}
		c.store(key, identity, digest, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bytecode.Stream), nil
}

func (c *Cache) store(key, identity string, digest Digest, s *bytecode.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{identity: identity, digest: digest, stream: s, names: make(map[namesKey][]string)}

	for len(c.order) > c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *Cache) names(set *bytecode.InstructionSet, identity string, digest Digest, k namesKey) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[entryKey(set, identity)]
	if !ok || e.digest != digest {
		return nil, false
	}
	names, ok := e.names[k]
	if !ok {
		return nil, false
	}
	return append([]string(nil), names...), true
}

func (c *Cache) storeNames(set *bytecode.InstructionSet, identity string, digest Digest, k namesKey, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[entryKey(set, identity)]; ok && e.digest == digest {
		e.names[k] = append([]string(nil), names...)
	}
}

// Invalidate drops every entry for identity, whatever instruction set decoded it.
func (c *Cache) Invalidate(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, key := range c.order {
		if c.entries[key].identity == identity {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
