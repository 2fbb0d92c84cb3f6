// Package cache keeps verification reports in an LRU cache keyed by a digest
// of the program and the options it was verified with, with msgpack disk
// persistence between runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/bpf-verify/pkg/program"
	"github.com/l3aro/bpf-verify/pkg/verifier"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// formatVersion is bumped whenever Report changes shape.
const formatVersion = 1

// Key returns the cache key of prog verified with opts.
func Key(prog *program.Program, opts verifier.Options) (string, error) {
	h := sha256.New()
	enc := msgpack.NewEncoder(h)
	enc.SetSortMapKeys(true)
	// Expectations change the report, so they are part of the key.
	if err := enc.Encode(prog); err != nil {
		return "", fmt.Errorf("failed to encode program: %w", err)
	}
	if err := enc.Encode(opts.ForProgram(prog)); err != nil {
		return "", fmt.Errorf("failed to encode options: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Entry represents a cache entry with metadata.
type Entry struct {
	Key        string           `msgpack:"key"`
	Report     *verifier.Report `msgpack:"report"`
	AccessedAt time.Time        `msgpack:"accessed_at"`
	CreatedAt  time.Time        `msgpack:"created_at"`
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

// list is a doubly-linked list, most recently used at the head.
type list struct {
	head *listItem
	tail *listItem
	len  int
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// removeBack removes and returns the least recently used item.
func (l *list) removeBack() *listItem {
	item := l.tail
	if item != nil {
		l.unlink(item)
	}
	return item
}

// Options configures the cache.
type Options struct {
	// MaxSize is the maximum number of reports. 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted.
	OnEvict func(key string, report *verifier.Report)
}

// Stats returns cache statistics.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
}

// Cache is an in-memory LRU cache of reports. It is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	items     map[string]*listItem
	lru       list
	maxSize   int
	onEvict   func(key string, report *verifier.Report)
	hitCount  int64
	missCount int64
}

// New creates a new cache with the given options.
func New(opts Options) *Cache {
	return &Cache{
		items:   make(map[string]*listItem),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get retrieves a report from the cache.
func (c *Cache) Get(key string) (*verifier.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Report, true
}

// Lookup is Get returning ErrKeyNotFound for missing keys.
func (c *Cache) Lookup(key string) (*verifier.Report, error) {
	r, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	return r, nil
}

// Set stores a report in the cache.
func (c *Cache) Set(key string, report *verifier.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if item, exists := c.items[key]; exists {
		item.Report = report
		item.AccessedAt = now
		c.lru.moveToFront(item)
		return
	}

	item := &listItem{Entry: Entry{Key: key, Report: report, AccessedAt: now, CreatedAt: now}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	if c.onEvict != nil {
		c.onEvict(key, item.Report)
	}
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem)
	c.lru = list{}
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: len(c.items), HitCount: c.hitCount, MissCount: c.missCount}
}

func (c *Cache) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.len > c.maxSize {
		item := c.lru.removeBack()
		delete(c.items, item.Key)
		if c.onEvict != nil {
			c.onEvict(item.Key, item.Report)
		}
	}
}

type cacheData struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save persists the cache to a writer using msgpack, most recently used
// first.
func (c *Cache) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := cacheData{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for item := c.lru.head; item != nil; item = item.next {
		data.Entries = append(data.Entries, item.Entry)
	}
	return msgpack.NewEncoder(w).Encode(data)
}

// Load restores the cache from a reader using msgpack. Data written by a
// different format version is discarded.
func (c *Cache) Load(r io.Reader) error {
	var data cacheData
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem)
	c.lru = list{}
	if data.Version != formatVersion {
		return nil
	}
	for i := len(data.Entries) - 1; i >= 0; i-- {
		item := &listItem{Entry: data.Entries[i]}
		c.items[item.Key] = item
		c.lru.pushFront(item)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to a file, creating parent directories.
func PersistToFile(c *Cache, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFromFile loads the cache from a file. A missing file is not an error.
func LoadFromFile(c *Cache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
