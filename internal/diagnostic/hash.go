// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostic

import (
	"crypto/sha256"
	"encoding/hex"
)

// FileHash is the hex-encoded SHA-256 digest of a file's contents. It is
// used as the cache key and the incremental processor's change detector.
// Two files with the same hash are treated as equivalent regardless of
// mtime (§3). The hash is not used for any security-sensitive purpose —
// only uniform, deterministic change detection.
type FileHash string

// HashOf computes the FileHash of the given bytes.
func HashOf(content []byte) FileHash {
	sum := sha256.Sum256(content)
	return FileHash(hex.EncodeToString(sum[:]))
}

// Empty reports whether h is the zero value (no content hashed yet).
func (h FileHash) Empty() bool {
	return h == ""
}
