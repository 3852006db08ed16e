package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
)

// RandomHex returns 2*n hex characters from crypto/rand.
func RandomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, RandomHex(8))
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return fmt.Sprintf("req_%d_%s", Now().UnixNano(), RandomHex(4))
}

// Base36Timestamp encodes the current time in nanoseconds as base36.
func Base36Timestamp() string {
	return strconv.FormatInt(Now().UnixNano(), 36)
}
