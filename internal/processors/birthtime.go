package processors

import (
	"os"
	"time"
)

// birthTime reports a file's creation time where the platform's stat call
// exposes one. Linux's traditional stat(2) does not report file birth time
// (it requires statx(2), which the standard library doesn't wrap), so this
// always reports false there; ModifyTime is used as create_time's fallback
// per spec.md §3.
func birthTime(_ os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
