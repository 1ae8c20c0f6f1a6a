// Package mes talks to the plant's manufacturing execution system: the link
// (pair two serials and depanel), depanel (single serial), and operator login
// endpoints.
//
// Link and depanel never return errors. Transport failures, timeouts, HTTP
// errors and malformed bodies are all reduced to an Outcome with Success false
// and a short message suitable for the operator display.
package mes
