// Package frappe is the HTTP client for the CRM (Frappe/ERPNext) that owns
// admissions leads.
//
// Three calls are used:
//   - Metadata: a whitelisted method returning the option sets forms
//     validate against
//   - Submit: inserts a document of the form's doctype
//   - Leads: a whitelisted method returning one page of leads
//
// Requests authenticate with "Authorization: token key:secret" and each call
// runs inside an OpenTelemetry client span.
package frappe
