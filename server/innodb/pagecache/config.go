package pagecache

import (
	"math"

	"github.com/pelletier/go-toml"
)

// InvalidBlock is the sentinel block id for a detached page. Block 0 is also
// reserved; callers must never pass either value to GetPage.
const InvalidBlock uint64 = math.MaxUint64

// Config holds the tunables in spec.md §6: BlockSize, PageMax, ClusterSize
// and ShardCount. Zero-value Config is invalid; use DefaultConfig or LoadConfig.
type Config struct {
	// BlockSize is the number of bytes per block, and the exact size of
	// every page's data buffer.
	BlockSize uint32 `toml:"block_size"`

	// PageMax is the soft, process-wide cap on resident pages. The cap is
	// divided evenly across shards to drive per-bucket eviction.
	PageMax uint64 `toml:"page_max"`

	// ClusterSize is the writeback threshold, in pages, for the dirty list.
	ClusterSize uint64 `toml:"cluster_size"`

	// ShardCount is the number of hash buckets (N in spec.md).
	ShardCount uint32 `toml:"shard_count"`
}

// DefaultConfig mirrors the constants the teacher's BufferPoolConfig hardcodes
// for a modest in-memory cache, sized for a single mounted filesystem.
func DefaultConfig() Config {
	return Config{
		BlockSize:   4096,
		PageMax:     16384,
		ClusterSize: 64,
		ShardCount:  256,
	}
}

// Validate checks the tunables for internal consistency.
func (c Config) Validate() error {
	if c.BlockSize == 0 {
		return errInvalidConfig("block_size must be > 0")
	}
	if c.ShardCount == 0 {
		return errInvalidConfig("shard_count must be > 0")
	}
	if c.ClusterSize == 0 {
		return errInvalidConfig("cluster_size must be > 0")
	}
	return nil
}

// perBucketCap returns PAGE_MAX / N from spec.md §4.4, the soft per-shard cap
// that triggers the eviction scan in ReleasePage.
func (c Config) perBucketCap() uint64 {
	return c.PageMax / uint64(c.ShardCount)
}

// LoadConfig reads tunables from a TOML file on disk, starting from
// DefaultConfig for any key the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	tree, err := toml.LoadFile(path)
	if err != nil {
		return Config{}, errWrap(err, "load config")
	}
	if err := tree.Unmarshal(&cfg); err != nil {
		return Config{}, errWrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
