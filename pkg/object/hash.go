package object

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the content address of a typed payload. The hash input
// is exactly the storage envelope as written to disk: type name, one NUL
// byte, payload. Same payload under a different type therefore hashes to a
// different digest.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(objType))
	h.Write([]byte{0})
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
