package filestore

import "path"

// HashPath spreads content-addressed blobs over three directory levels taken
// from the leading hex digits of hash, e.g. "abc123def456" becomes
// "ab/c1/23/abc123def456". Hashes shorter than six characters are returned as is.
func HashPath(hash string) string {
	return HashPathWithExt(hash, "")
}

// HashPathWithExt is [HashPath] with ext appended to the final element.
func HashPathWithExt(hash, ext string) string {
	if len(hash) < 6 {
		return hash + ext
	}
	return path.Join(hash[0:2], hash[2:4], hash[4:6], hash+ext)
}
