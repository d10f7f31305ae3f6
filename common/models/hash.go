package models

const (
	HashTypeBlake2b HashType = "BLAKE2B"
	HashTypeSHA256  HashType = "SHA256"
	HashTypeMD5     HashType = "MD5"
)

// HashType identifies the algorithm used to produce a content digest, such as
// the per-output checksums workers report in step status metrics.
type HashType string

func (s HashType) Valid() bool {
	return s == HashTypeBlake2b || s == HashTypeSHA256 || s == HashTypeMD5
}

func (s HashType) String() string {
	return string(s)
}
