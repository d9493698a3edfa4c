// Package auth generates and validates the shared secrets presented by the
// trusted upstream proxy as service credentials.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/dariusreyes/gitvault/pkg/utils"
)

// Word lists for human-readable credential generation. Picked from the
// repository/object-storage domain this service actually lives in, rather
// than the space/elements theme of an unrelated API-key generator — the
// entropy budget per component is what has to match, not the words.
var (
	// 4 prefixes (2 bits entropy)
	credentialPrefixes = []string{
		"repo", "blob", "ref", "tree",
	}

	// 128 adjectives (7 bits entropy each)
	credentialAdjectives = []string{
		"atomic", "durable", "frozen", "staged", "packed", "shallow", "bare", "detached",
		"pinned", "tracked", "synced", "merged", "rebased", "cherry", "orphan", "annotated",
		"signed", "verified", "squashed", "amended", "stashed", "tagged", "branched", "forked",
		"cloned", "mirrored", "archived", "compressed", "chunked", "sharded", "replicated", "indexed",
		"cached", "buffered", "streamed", "pooled", "batched", "queued", "locked", "leased",
		"granted", "revoked", "expired", "renewed", "rotated", "issued", "minted", "stamped",
		"sealed", "encoded", "decoded", "hashed", "digested", "checksummed", "validated", "parsed",
		"resolved", "dispatched", "routed", "proxied", "relayed", "forwarded", "mounted", "bound",
		"nested", "layered", "stacked", "chained", "linked", "anchored", "rooted", "scoped",
		"spanned", "sliced", "padded", "trimmed", "masked", "filtered", "sorted", "ranked",
		"weighted", "balanced", "throttled", "capped", "bounded", "clamped", "tuned", "primed",
		"warmed", "chilled", "idle", "active", "pending", "running", "paused", "halted",
		"drained", "flushed", "settled", "committed", "reverted", "patched", "diffed", "blamed",
		"logged", "traced", "widened", "sampled", "probed", "polled", "scanned", "crawled",
		"fetched", "pushed", "pulled", "docked", "severed", "gated", "walled", "sandboxed",
		"isolated", "shared", "exclusive", "shadow", "ghost", "phantom", "silent", "quiet",
	}

	// 128 nouns (7 bits entropy)
	credentialNouns = []string{
		"commit", "branch", "tag", "blob", "tree", "ref", "head", "remote",
		"origin", "upstream", "fork", "clone", "patch", "diff", "hunk", "merge",
		"rebase", "cherry", "stash", "worktree", "submodule", "hook", "index", "object",
		"pack", "loose", "bundle", "archive", "release", "asset", "artifact", "manifest",
		"ledger", "vault", "chamber", "bucket", "shelf", "crate", "bin", "silo",
		"queue", "pipeline", "conduit", "channel", "socket", "stream", "feed", "wire",
		"gateway", "proxy", "relay", "bridge", "hub", "node", "cluster", "shard",
		"partition", "segment", "chunk", "block", "page", "frame", "slot", "cell",
		"ticket", "token", "grant", "lease", "permit", "badge", "stamp", "seal",
		"key", "lock", "latch", "bolt", "hinge", "clasp", "buckle", "catch",
		"beacon", "signal", "flare", "pulse", "tick", "clock", "timer", "cycle",
		"engine", "worker", "runner", "agent", "daemon", "watcher", "sentry", "guard",
		"ledgerbook", "record", "entry", "journal", "log", "trace", "audit", "trail",
		"map", "graph", "lookup", "catalog", "registry", "directory", "inventory", "roster",
		"anchor", "pivot", "axis", "swivel", "joint", "seam", "weld", "rivet",
		"harbor", "dock", "port", "terminal", "depot", "station", "yard", "wharf",
	}

	// 4 suffixes (2 bits entropy)
	credentialSuffixes = []string{
		"zero", "alpha", "stable", "live",
	}
)

// GenerateServiceCredential produces a human-readable shared secret with
// 121 bits of entropy (2+7+7+7+96+2):
// {prefix}-{adjective}-{noun}-{adjective}-{24-char-hex}-{suffix}.
func GenerateServiceCredential() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	prefixIdx := int(randomBytes[0]) % len(credentialPrefixes)
	adj1Idx := int(randomBytes[1]) % len(credentialAdjectives)
	nounIdx := int(randomBytes[2]) % len(credentialNouns)
	adj2Idx := int(randomBytes[3]) % len(credentialAdjectives)
	suffixIdx := int(randomBytes[4]) % len(credentialSuffixes)

	hexBytes := make([]byte, 12)
	if _, err := rand.Read(hexBytes); err != nil {
		return "", fmt.Errorf("failed to generate hex component: %w", err)
	}
	hexComponent := strings.ToUpper(hex.EncodeToString(hexBytes))

	credential := fmt.Sprintf("%s-%s-%s-%s-%s-%s",
		credentialPrefixes[prefixIdx],
		credentialAdjectives[adj1Idx],
		credentialNouns[nounIdx],
		credentialAdjectives[adj2Idx],
		hexComponent,
		credentialSuffixes[suffixIdx],
	)

	return credential, nil
}

// ValidateCredentialFormat reports whether s matches the generated shape:
// prefix-adjective-noun-adjective-hex-suffix.
func ValidateCredentialFormat(s string) bool {
	if s == "" {
		return false
	}

	parts := strings.Split(s, "-")
	if len(parts) != 6 {
		return false
	}
	prefix, adj1, noun, adj2, hexPart, suffix := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]

	if !containsString(credentialPrefixes, prefix) {
		return false
	}
	if !containsString(credentialAdjectives, adj1) {
		return false
	}
	if !containsString(credentialNouns, noun) {
		return false
	}
	if !containsString(credentialAdjectives, adj2) {
		return false
	}
	if !containsString(credentialSuffixes, suffix) {
		return false
	}

	hexPattern := regexp.MustCompile(`^[A-F0-9]{24}$`)
	return hexPattern.MatchString(hexPart)
}

// HashCredential hashes a plaintext credential for storage.
func HashCredential(credential string) string {
	return utils.HashAPIKey(credential)
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
