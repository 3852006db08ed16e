package services

import (
	"fmt"
	"strings"

	"screenshare/internal/core/domain"
	"screenshare/pkg/utils"
)

const maxRoomPrefixLength = 40

// GenerateRoomID derives a conference room name from the publisher id:
// <sanitized id>-<unix nanos, base36>-<8 hex chars>. The result is safe as a URL path segment.
func GenerateRoomID(publisherID domain.UserID) string {
	prefix := utils.SanitizeSlug(strings.TrimSpace(string(publisherID)))
	if len(prefix) > maxRoomPrefixLength {
		prefix = prefix[:maxRoomPrefixLength]
	}
	if prefix == "" {
		prefix = "publisher"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, utils.Base36Timestamp(), utils.RandomHex(4))
}
