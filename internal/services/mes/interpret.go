package mes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// MsgNoInfo is reported when a result key arrives without an info message.
const MsgNoInfo = "No info returned"

// vocabulary names the per-endpoint result key and default messages.
type vocabulary struct {
	resultKey string
	okMsg     string
	failMsg   string
	legacyOK  string
	legacyBad string
}

var (
	linkVocabulary = vocabulary{
		resultKey: "linked",
		okMsg:     "Linked successfully",
		failMsg:   "Link failed",
		legacyOK:  "Success",
		legacyBad: "Failed",
	}
	depanelVocabulary = vocabulary{
		resultKey: "depanelled",
		okMsg:     "Depanel successful",
		failMsg:   "Depanel failed",
		legacyOK:  "Depanel successful",
		legacyBad: "Depanel failed",
	}
)

// interpret maps a response to an Outcome. Checked in order: HTTP error
// status, unparsable body, the endpoint's result key (either result key is
// accepted), legacy success flag, explicit error, then a bare 2xx as success.
func interpret(status int, body []byte, vocab vocabulary) Outcome {
	var resp map[string]any
	parseErr := json.Unmarshal(body, &resp)
	if parseErr != nil {
		resp = nil
	}

	if status >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(body))
		if resp != nil {
			if e, ok := resp["error"]; ok {
				msg = textOf(e)
			}
			msg = withDetails(msg, resp["details"])
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return Outcome{Success: false, Message: fmt.Sprintf("HTTP %d: %s", status, msg)}
	}
	if resp == nil {
		return Outcome{Success: false, Message: MsgInvalidResponse}
	}

	for _, key := range []string{vocab.resultKey, linkVocabulary.resultKey, depanelVocabulary.resultKey} {
		raw, ok := resp[key]
		if !ok {
			continue
		}
		success := truthy(raw)
		msg := textOf(resp["info"])
		if !success {
			msg = withDetails(msg, resp["details"])
		}
		if msg == "" {
			msg = MsgNoInfo
		}
		return Outcome{Success: success, Message: msg}
	}

	if raw, ok := resp["success"]; ok {
		success := truthy(raw)
		msg := textOf(resp["info"])
		if msg == "" {
			msg = textOf(resp["message"])
		}
		if msg == "" {
			msg = vocab.legacyBad
			if success {
				msg = vocab.legacyOK
			}
		}
		return Outcome{Success: success, Message: msg}
	}

	if e, ok := resp["error"]; ok {
		msg := withDetails(textOf(e), resp["details"])
		if msg == "" {
			msg = vocab.failMsg
		}
		return Outcome{Success: false, Message: msg}
	}

	msg := textOf(resp["info"])
	if msg == "" {
		msg = vocab.okMsg
	}
	return Outcome{Success: true, Message: msg}
}

// withDetails appends a details value (string or list) as "msg | d1; d2".
func withDetails(msg string, details any) string {
	var detail string
	switch v := details.(type) {
	case nil:
	case []any:
		parts := make([]string, 0, len(v))
		for _, d := range v {
			if d == nil {
				continue
			}
			parts = append(parts, textOf(d))
		}
		detail = strings.Join(parts, "; ")
	default:
		detail = textOf(v)
	}
	switch {
	case detail == "":
		return msg
	case msg == "":
		return detail
	default:
		return msg + " | " + detail
	}
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
