package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

// taskETag derives the opaque validator from (version, updatedAt). The
// version component is parseable back out for If-Match preconditions.
func taskETag(t *models.Task) string {
	return fmt.Sprintf(`"v%d-%d"`, t.Version, t.UpdatedAt.UTC().UnixMilli())
}

// parseIfMatch extracts the expected version from an If-Match header value
// produced by taskETag. An absent header means no precondition (nil); a
// value that does not look like ours yields ok=false.
func parseIfMatch(header string) (expected *int64, ok bool) {
	if header == "" {
		return nil, true
	}
	value := strings.Trim(strings.TrimSpace(header), `"`)
	if !strings.HasPrefix(value, "v") {
		return nil, false
	}
	parts := strings.SplitN(value[1:], "-", 2)
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || v < 1 {
		return nil, false
	}
	return &v, true
}
