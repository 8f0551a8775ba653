// Package form describes registration forms as data.
//
// # Overview
//
// A Schema lists the fields of one form (admission, enrollment, event
// registration, career consultation). Every field has a Kind that decides how
// its Value is shaped and how it travels through a query string:
//
//   - text: free text
//   - select: one value out of an option set
//   - multiselect: a list of values out of an option set
//   - bool: a flag
//
// A State maps field names to values. The schemas shipped with the service
// live in schemas/*.yaml and are loaded with Builtin.
//
// # Validation
//
// Validation is deliberately minimal. Fields may be marked required and carry
// rules in the same comma separated form used by struct tags elsewhere:
//
//	rules: "email,maxlen=120"
//
// # Submission
//
// Schema.Payload flattens a State into the document posted to the CRM,
// renaming fields through submitAs and reshaping lists and flags.
package form
