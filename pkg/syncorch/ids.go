// Package syncorch turns one vendor adapter's meeting DTO into durable,
// deduplicated rows: the meeting, its items, the matters those items
// reference, and the matter-appearance records linking them -- then
// enqueues a downstream summarization job when the meeting qualifies.
package syncorch

import (
	"crypto/sha256"
	"encoding/hex"
)

func shortHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// MeetingID derives the globally unique meeting identifier from a
// city's banana and the vendor's own meeting id: the banana prefix keeps
// equal vendor ids in different cities apart, and the vendor id is
// hashed into a fixed-length suffix. The vendor tag is not part of the
// hash, so the same vendor id under the same banana always yields the
// same meeting id.
func MeetingID(banana, vendorID string) string {
	return banana + "_" + shortHash(vendorID)
}

// MatterID derives the per-city matter identifier. When matterFile is
// present it is the identity; vendors that never expose a human
// case number fall back to a hash of whatever identifying fields the
// adapter could recover (vendor matter_id, or failing that, the item
// title), so the same matter always maps to the same id across syncs.
func MatterID(banana, matterFile string, fallbackSeed ...string) string {
	if matterFile != "" {
		return banana + "_" + shortHash(matterFile)
	}
	for _, seed := range fallbackSeed {
		if seed != "" {
			return banana + "_" + shortHash(seed)
		}
	}
	return banana + "_" + shortHash()
}
