package pagination

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
)

// ExtractTotal reads the total record count hint from response headers.
// X-Total-Count wins over Content-Range ("0-99/250"); a "*" total, a missing
// header or a malformed value all mean unknown.
func ExtractTotal(h http.Header) (int, bool) {
	if h == nil {
		return 0, false
	}

	if raw := strings.TrimSpace(h.Get(docapi.HeaderTotalCount)); raw != "" {
		if total, err := strconv.Atoi(raw); err == nil && total >= 0 {
			return total, true
		}
	}

	contentRange := strings.TrimSpace(h.Get(docapi.HeaderContentRange))
	slash := strings.LastIndexByte(contentRange, '/')
	if slash < 0 {
		return 0, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(contentRange[slash+1:]))
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
