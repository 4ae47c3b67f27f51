// Package pool caches decoded folder readers so that opening several files
// that live in the same solid-compression folder does not re-run the
// decoder pipeline from the start of the folder for every file. It is
// grounded on bodgit/sevenzip's internal/pool, adapted to key entries by the
// byte offset a folder's decoder has been consumed up to (rather than a
// stream index), around hashicorp/golang-lru/v2, since this decoder
// resolves file ranges within a folder itself rather than per-stream.
package pool

import (
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Pool caches up to size parked folder readers, dropping the least recently
// used one once it is full. Get checks a reader out: the entry leaves the
// cache, so exactly one consumer ever reads a given pipeline; Put parks it
// again under the offset it has been consumed up to.
type Pool struct {
	cache *lru.Cache[int64, io.ReadCloser]
}

// New creates a pool that holds at most size parked folder readers.
func New(size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	c, err := lru.New[int64, io.ReadCloser](size)
	if err != nil {
		return nil, err
	}
	return &Pool{cache: c}, nil
}

// Get checks out the reader parked under key i, removing it from the pool.
// go7z/sevenzip keys by the byte offset a folder decoder has been consumed
// up to, so a file whose start coincides with a parked decoder's position
// can resume that decode instead of restarting the folder.
func (p *Pool) Get(i int64) (io.ReadCloser, bool) {
	rc, ok := p.cache.Peek(i)
	if ok {
		p.cache.Remove(i)
	}
	return rc, ok
}

// Put parks rc under key i, closing whatever reader it displaces.
func (p *Pool) Put(i int64, rc io.ReadCloser) {
	if old, ok := p.cache.Peek(i); ok {
		_ = old.Close()
	}
	p.cache.Add(i, rc)
}

// Remove drops and closes the parked reader for key i, if any.
func (p *Pool) Remove(i int64) {
	if old, ok := p.cache.Peek(i); ok {
		_ = old.Close()
		p.cache.Remove(i)
	}
}

// Close closes every parked reader and empties the pool.
func (p *Pool) Close() error {
	for _, key := range p.cache.Keys() {
		if rc, ok := p.cache.Peek(key); ok {
			_ = rc.Close()
		}
	}
	p.cache.Purge()
	return nil
}
