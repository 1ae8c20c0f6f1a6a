package logging

// Standardized structured logging keys.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldCycleID   = "cycle_id"
	FieldState     = "state"
	FieldBoard     = "board"
	FieldOperator  = "operator"
	FieldSide      = "side"
	// FieldCorrelationID carries IPC request identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
