package rotation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Item types in the rotation pool.
const (
	TypeImage = "image"
	TypeQuote = "quote"
)

// DefaultKey is shown when nothing else can be chosen.
const DefaultKey = "quote:0"

// ErrEmptyPool is returned when a pool has no items.
var ErrEmptyPool = errors.New("rotation: empty pool")

// Item is one displayable pool entry.
type Item struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Key returns the stored "type:index" form.
func (i Item) Key() string {
	return i.Type + ":" + strconv.Itoa(i.Index)
}

// ParseKey splits a "type:index" key.
func ParseKey(key string) (Item, error) {
	typ, idx, ok := strings.Cut(key, ":")
	if !ok || typ == "" {
		return Item{}, fmt.Errorf("invalid rotation key %q", key)
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return Item{}, fmt.Errorf("invalid rotation key %q", key)
	}
	return Item{Type: typ, Index: index}, nil
}

// Pool is the fixed, ordered set of selectable items.
type Pool struct {
	items      []Item
	ordinals   map[string]int
	defaultKey string
}

// NewPool builds a pool of images then quotes. defaultKey must be a member; an
// empty or unknown default falls back to the first item.
func NewPool(images, quotes int, defaultKey string) (*Pool, error) {
	items := make([]Item, 0, max(0, images)+max(0, quotes))
	for i := 0; i < images; i++ {
		items = append(items, Item{Type: TypeImage, Index: i})
	}
	for i := 0; i < quotes; i++ {
		items = append(items, Item{Type: TypeQuote, Index: i})
	}
	return NewPoolFromItems(items, defaultKey)
}

// NewPoolFromItems builds a pool from an explicit item list. Duplicate keys keep
// their first position.
func NewPoolFromItems(items []Item, defaultKey string) (*Pool, error) {
	if len(items) == 0 {
		return nil, ErrEmptyPool
	}

	p := &Pool{
		items:    make([]Item, 0, len(items)),
		ordinals: make(map[string]int, len(items)),
	}
	for _, item := range items {
		key := item.Key()
		if _, dup := p.ordinals[key]; dup {
			continue
		}
		p.ordinals[key] = len(p.items)
		p.items = append(p.items, item)
	}

	p.defaultKey = p.items[0].Key()
	if p.Contains(defaultKey) {
		p.defaultKey = defaultKey
	}
	return p, nil
}

// Len returns the number of items.
func (p *Pool) Len() int {
	return len(p.items)
}

// Items returns the items in pool order.
func (p *Pool) Items() []Item {
	return append([]Item(nil), p.items...)
}

// Keys returns the item keys in pool order.
func (p *Pool) Keys() []string {
	keys := make([]string, len(p.items))
	for i, item := range p.items {
		keys[i] = item.Key()
	}
	return keys
}

// Contains reports whether key is a pool member.
func (p *Pool) Contains(key string) bool {
	_, ok := p.ordinals[key]
	return ok
}

// Ordinal returns the pool position of key.
func (p *Pool) Ordinal(key string) (int, bool) {
	ordinal, ok := p.ordinals[key]
	return ordinal, ok
}

// DefaultKey returns the fallback key.
func (p *Pool) DefaultKey() string {
	return p.defaultKey
}

// Decode returns the item for key, or the default item if key is malformed or
// no longer in the pool.
func (p *Pool) Decode(key string) Item {
	if ordinal, ok := p.ordinals[key]; ok {
		return p.items[ordinal]
	}
	return p.items[p.ordinals[p.defaultKey]]
}
