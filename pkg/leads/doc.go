// Package leads models the read-only leads listing: the page state that is
// kept in the listing URL, the query sent to the CRM and the status pills
// rendered for each record.
//
// The page state travels through the same parameter codec as the forms, so
// an empty search is written as __empty and an unknown status degrades to
// "all statuses":
//
//	st := leads.Decode("page=3&status=Contacted", leads.DefaultLimits, statuses)
//	next := leads.Encode(st.WithPage(4))
package leads
