package mqtt

import (
	"strings"

	"seriallinker/internal/textutil"
)

// Topics builds topic names under the configured prefix. The station name is
// reduced to a single lowercase segment so names with spaces or slashes stay
// one level deep.
type Topics struct {
	Prefix string
}

func (t Topics) join(station, leaf string) string {
	prefix := strings.Trim(t.Prefix, "/")
	if prefix == "" {
		prefix = "seriallinker"
	}
	return prefix + "/" + textutil.SanitizeToken(station) + "/" + leaf
}

// Status is the retained online/offline topic for a station.
func (t Topics) Status(station string) string { return t.join(station, "status") }

// Display carries the current display text and colour.
func (t Topics) Display(station string) string { return t.join(station, "display") }

// Result carries one message per completed work cycle.
func (t Topics) Result(station string) string { return t.join(station, "result") }
