package resultlog

import (
	"time"

	"seriallinker/internal/textutil"
)

// Result column values.
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	missingCode     = "N/A"
	unknownValue    = "Unknown"
)

// Side names one face of a board.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Entry is one row of the link log.
type Entry struct {
	CycleID   string    `json:"cycle_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Operator  string    `json:"operator"`
	Board     string    `json:"board"`
	LeftSN    string    `json:"left_sn"`
	RightSN   string    `json:"right_sn"`
	Result    string    `json:"result"`
	Message   string    `json:"message"`
}

// NewEntry builds a row with placeholders for missing values.
func NewEntry(ts time.Time, operator, board, left, right string, success bool, message string) Entry {
	result := ResultFail
	if success {
		result = ResultPass
	}
	return Entry{
		Timestamp: ts,
		Operator:  textutil.OrDefault(operator, unknownValue),
		Board:     textutil.OrDefault(board, unknownValue),
		LeftSN:    textutil.OrDefault(left, missingCode),
		RightSN:   textutil.OrDefault(right, missingCode),
		Result:    result,
		Message:   message,
	}
}

// Passed reports whether the row records a successful cycle.
func (e Entry) Passed() bool {
	return e.Result == ResultPass
}

func (e Entry) record() []string {
	return []string{
		e.Timestamp.Format(timestampLayout),
		e.Operator,
		e.Board,
		e.LeftSN,
		e.RightSN,
		e.Result,
		e.Message,
	}
}

var header = []string{"Timestamp", "Operator", "Board", "Left_SN", "Right_SN", "Result", "Message"}
