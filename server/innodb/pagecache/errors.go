package pagecache

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for the cache surface, in the spirit of the teacher's
// buffer_pool/errors.go: one var per condition, wrapped by a typed error
// that records which operation failed.
var (
	ErrPageNotFound    = errors.New("pagecache: page not found")
	ErrCacheExhausted  = errors.New("pagecache: no evictable page available under pressure")
	ErrIOError         = errors.New("pagecache: block device I/O error")
	ErrPageCorrupted   = errors.New("pagecache: page checksum mismatch")
	ErrInvalidConfig   = errors.New("pagecache: invalid configuration")
	ErrInvalidBlock    = errors.New("pagecache: block id is reserved (0 or InvalidBlock)")
)

// CacheError annotates a sentinel error with the operation that produced it,
// mirroring BufferPoolError in the teacher repo.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	if e.Err == nil {
		return e.Op + ": <nil>"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *CacheError) Unwrap() error { return e.Err }

func newCacheError(op string, err error) error {
	return &CacheError{Op: op, Err: err}
}

func errInvalidConfig(msg string) error {
	return newCacheError("config", pkgerrors.Wrap(ErrInvalidConfig, msg))
}

func errWrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

// IsNotFound reports whether err is or wraps ErrPageNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrPageNotFound) }

// IsCorrupted reports whether err is or wraps ErrPageCorrupted.
func IsCorrupted(err error) bool { return errors.Is(err, ErrPageCorrupted) }

// IsIOError reports whether err is or wraps ErrIOError.
func IsIOError(err error) bool { return errors.Is(err, ErrIOError) }

// IsExhausted reports whether err is or wraps ErrCacheExhausted.
func IsExhausted(err error) bool { return errors.Is(err, ErrCacheExhausted) }
