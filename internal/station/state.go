package station

// State is a control loop state.
type State string

const (
	StateLoggedOut  State = "logged_out"
	StateWaitRemove State = "wait_remove"
	StateWaitBoard  State = "wait_board"
	StateWaitStart  State = "wait_start"
	StateLinking    State = "linking"
	StatePass       State = "pass"
	StateFail       State = "fail"
)

// Display colours.
const (
	ColorIdle       = "#1b1b1b"
	ColorLoaded     = "#ffda33"
	ColorLinking    = "#0078d7"
	ColorLinkingAlt = "#33a3ff"
	ColorPass       = "#28a745"
	ColorFail       = "#c50000"
)

// Display is what the operator console shows for the current state.
type Display struct {
	State State  `json:"state"`
	Text  string `json:"text"`
	Color string `json:"color"`
	// PulseColor is set while the display should alternate between Color and PulseColor.
	PulseColor string `json:"pulse_color,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// DisplayFor returns the display for a state. detail is the cycle message on
// Pass/Fail and the open interlock on WaitStart; other states ignore it.
func DisplayFor(state State, detail string) Display {
	d := Display{State: state, Color: ColorIdle}
	switch state {
	case StateLoggedOut:
		d.Text = "LOG IN TO START"
	case StateWaitRemove:
		d.Text = "REMOVE BOARD"
	case StateWaitBoard:
		d.Text = "WAITING FOR BOARD"
	case StateWaitStart:
		d.Text = "LOADED - PRESS START"
		d.Color = ColorLoaded
		d.Detail = detail
	case StateLinking:
		d.Text = "LINKING..."
		d.Color = ColorLinking
		d.PulseColor = ColorLinkingAlt
	case StatePass:
		d.Text = "LINKING SUCCESSFUL"
		d.Color = ColorPass
		d.Detail = detail
	case StateFail:
		d.Text = "LINKING FAILED"
		d.Color = ColorFail
		d.Detail = detail
	}
	return d
}

// Session is the logged-in operator and the selected board type.
type Session struct {
	OperatorID   string `json:"operator_id"`
	OperatorName string `json:"operator_name"`
	BoardType    string `json:"board_type"`
	BoardLabel   string `json:"board_label,omitempty"`
	DoubleSided  bool   `json:"double_sided"`
}
