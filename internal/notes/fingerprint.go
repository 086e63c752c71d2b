package notes

import (
	"encoding/hex"
	"hash/fnv"

	"golang.org/x/text/unicode/norm"
)

// fieldSeparator joins title and content before hashing. NUL does not
// occur in note text, so ("ab","c") and ("a","bc") hash differently.
const fieldSeparator = "\x00"

// Fingerprint derives a short deterministic digest of a note's title and
// content, used to detect real changes without comparing full content.
// Both fields are NFC-normalized first so the same logical text produces
// the same digest regardless of which Unicode composition the platform
// saved it with. FNV-1a is a change-detection signal, not an integrity
// guarantee.
func Fingerprint(title, content string) string {
	h := fnv.New32a()
	h.Write([]byte(norm.NFC.String(title)))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(norm.NFC.String(content)))

	sum := h.Sum(nil)

	return hex.EncodeToString(sum)
}
