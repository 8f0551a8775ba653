// Package errors provides the structured error type shared by the
// admissions service.
//
// Every error carries a stable code that maps to a registered template:
//
//	err := errors.New("A020").WithDetail("phone: invalid format").Wrap(cause)
//
// Codes are grouped by category:
//   - config: configuration loading and validation (A001-A019)
//   - upstream: CRM collaborator failures (A020-A039)
//   - validation: form field errors (A040-A059)
//   - protocol: form session wire errors (A060-A079)
//
// HTTP handlers translate an *Error into a JSON body with Status and JSON.
package errors
