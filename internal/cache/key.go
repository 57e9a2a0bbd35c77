package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// digestLen is the number of hex characters kept from the SHA-256 digest.
// 12 characters (48 bits) is plenty for cache-key disambiguation.
const digestLen = 12

// Key builds a cache key following the convention
// <scope>:<entityId>:<kind>:<paramsDigest>. The params are hashed so that
// identical inputs from different scopes never collide and arbitrary
// parameter content cannot break the key structure.
//
//	cache.Key("user", userID, "insight", period, tz)
func Key(scope, entityID, kind string, params ...string) string {
	return scope + ":" + entityID + ":" + kind + ":" + digest(params...)
}

// ContentKey builds a key for content-addressed payloads such as
// synthesized speech, where the entity is the content itself.
//
//	cache.ContentKey("voice", "mp3", text, voiceName)
func ContentKey(scope, kind string, content ...string) string {
	return scope + ":" + digest(content...) + ":" + kind
}

// UserPrefix returns the prefix shared by all keys scoped to one user,
// suitable for Cache.DeleteByPrefix.
func UserPrefix(userID string) string {
	return "user:" + userID + ":"
}

// digest hashes the joined parts to a short hex string. Parts are joined
// with an unlikely separator so ("ab","c") and ("a","bc") differ.
func digest(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])[:digestLen]
}
