package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Category string

const (
	CategoryFixPlan   Category = "fix_plan"
	CategoryFileFix   Category = "file_fix"
	CategoryAnalysis  Category = "analysis"
	CategoryDiscovery Category = "discovery"
)

// Policy describes how long entries of a category stay valid.
type Policy struct {
	TTL         time.Duration
	Description string
}

// DefaultPolicies is the category policy table used when a caller passes
// no policies of its own.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryFixPlan:   {TTL: 30 * time.Minute, Description: "Per-issue fix plans"},
		CategoryFileFix:   {TTL: 30 * time.Minute, Description: "Whole-file remediations"},
		CategoryAnalysis:  {TTL: time.Hour, Description: "Issue analyses"},
		CategoryDiscovery: {TTL: 24 * time.Hour, Description: "Analyzer discovery output"},
	}
}

// Cache is a category-aware key-value store with per-category TTLs. Get
// treats every failure as a miss; Set reports failures so callers can
// decide whether a cold cache is tolerable.
type Cache interface {
	Get(ctx context.Context, cat Category, key string) ([]byte, bool)
	Set(ctx context.Context, cat Category, key string, value []byte) error
}

// Key hashes arbitrary request material into a stable cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
