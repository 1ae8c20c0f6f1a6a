// Package textutil normalizes the short strings that flow through a link
// cycle: decoded serial codes, operator names, and path segments.
package textutil
