package textutil

import (
	"fmt"
	"time"
)

// TimestampTag renders t as 20060102_150405_micro. Two tags taken within the
// same microsecond collide; callers that must never collide check for it.
func TimestampTag(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Microsecond))
}
