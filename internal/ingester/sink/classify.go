package sink

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var permanentStatuses = []int{400, 404, 422, 444}

// IsPermanent reports whether a failed insert can never succeed by retrying it, i.e. ClickHouse rejected the data
// itself.  The decision is made for the whole batch: ClickHouse does not say which row was bad.  Anything that is not
// an answer from ClickHouse (timeouts, refused connections, ...) and all other statuses are transient.
func IsPermanent(err error) bool {
	var insertErr *InsertError
	if !errors.As(err, &insertErr) {
		return false
	}
	text := strings.ToLower(insertErr.Error())
	for _, status := range permanentStatuses {
		if insertErr.Status == status || strings.Contains(text, strconv.Itoa(status)) {
			return true
		}
	}
	return strings.Contains(text, "cannot parse")
}
