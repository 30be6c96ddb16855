package protocol

// IsValidKey reports whether key is usable as a binary-protocol key: the
// binary protocol, unlike the text protocol, places no constraint on key
// bytes beyond the 250-byte length cap.
func IsValidKey(key []byte) bool {
	return len(key) > 0 && len(key) <= MaxKeyLength
}
