// Package metadata loads the option catalog forms validate against.
//
// A Loader asks its primary Source once and never retries. When that fails
// the failure is logged, counted and the fallback catalog is returned, so a
// form can always leave its loading phase:
//
//	loader := metadata.NewLoader(metadata.CRM(client), metadata.Embedded())
//	catalog := loader.Load(ctx)
package metadata
