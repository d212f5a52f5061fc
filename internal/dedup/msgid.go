package dedup

const (
	// MessageIDPrefix keeps ids from colliding with ordinary payload text.
	MessageIDPrefix       = "MID_"
	MessageIDPrefixLength = len(MessageIDPrefix)
	MessageIDLength       = MessageIDPrefixLength + 8

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateMessageID returns a fresh id such as "MID_7Q2K0ZPA".
func (d *Deduplicator) GenerateMessageID() string {
	var b [MessageIDLength]byte
	copy(b[:], MessageIDPrefix)

	// *rand.Rand is not safe for concurrent use.
	d.rngMu.Lock()
	for i := MessageIDPrefixLength; i < MessageIDLength; i++ {
		b[i] = idAlphabet[d.rng.IntN(len(idAlphabet))]
	}
	d.rngMu.Unlock()

	id := string(b[:])
	if !IsValidMessageID(id) {
		panic("dedup: generated invalid message id " + id)
	}
	return id
}

// IsValidMessageID reports whether s has the exact id shape: the literal
// prefix followed by ASCII letters or digits up to MessageIDLength.
func IsValidMessageID(s string) bool {
	if len(s) != MessageIDLength || s[:MessageIDPrefixLength] != MessageIDPrefix {
		return false
	}
	for i := MessageIDPrefixLength; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
