// Package session implements the Session Service: the only component
// allowed to transition an upload session's status, and the home of the
// Strategy Selector that fixes an upload's materialization path at init.
package session

import (
	"github.com/dariusreyes/gitvault/pkg/config"
	"github.com/dariusreyes/gitvault/pkg/types"
)

const (
	minChunkSize = 1 << 20  // 1 MiB
	maxChunkSize = 50 << 20 // 50 MiB
)

// Selector is a pure function of declared size and configured policy. It
// is constructed once from the upload policy section and reused for every
// init call; strategy selection is a policy decision, not a stateful
// backend the way the storage layer's factory builds one.
type Selector struct {
	cfg *config.UploadConfig
}

// NewSelector builds a Selector over the given upload policy.
func NewSelector(cfg *config.UploadConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Pick chooses the storage strategy for a declared upload size. Git LFS
// takes priority when enabled, then release assets, then the inline-blob
// fast path for small objects when release assets are turned off, and
// finally repo-chunks as the catch-all for arbitrarily large objects.
func (sel *Selector) Pick(size int64) types.StorageStrategy {
	switch {
	case sel.cfg.EnableGitLFS && size <= sel.cfg.LFSThreshold:
		return types.StrategyGitLFS
	case sel.cfg.EnableReleaseAssets && size <= sel.cfg.ReleaseAssetMaxSize:
		return types.StrategyReleaseAsset
	case !sel.cfg.EnableReleaseAssets && size <= sel.cfg.InlineBlobMaxSize:
		return types.StrategyInlineBlob
	default:
		return types.StrategyRepoChunks
	}
}

// ChunkSize derives the chunk size for a declared upload size: the
// configured default, clamped to [1 MiB, 50 MiB] and never larger than the
// declared size itself.
func (sel *Selector) ChunkSize(size int64) int64 {
	chunkSize := sel.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = minChunkSize
	}
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	ceiling := sel.cfg.MaxChunkSize
	if ceiling <= 0 || ceiling > maxChunkSize {
		ceiling = maxChunkSize
	}
	if chunkSize > ceiling {
		chunkSize = ceiling
	}
	if size < chunkSize {
		chunkSize = size
	}
	return chunkSize
}

// TotalChunks computes ceil(size / chunkSize).
func TotalChunks(size, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	total := size / chunkSize
	if size%chunkSize != 0 {
		total++
	}
	return int(total)
}
