package relay

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ResolveKey computes the aggregation key for an inbound item.
//
// Items sharing (originID, albumID) map to the same key. Standalone items
// (empty albumID) get a key carrying a random suffix, so two uploads that reuse
// a message id can never be folded into one album. The "g"/"s" segment keeps
// album ids and message ids in separate namespaces.
func ResolveKey(originID int64, albumID string, seq int) string {
	origin := strconv.FormatInt(originID, 10)
	if albumID = strings.TrimSpace(albumID); albumID != "" {
		return origin + ":g:" + albumID
	}
	return origin + ":s:" + strconv.Itoa(seq) + ":" + uuid.NewString()
}
