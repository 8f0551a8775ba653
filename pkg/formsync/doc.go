// Package formsync keeps a form's state and its URL query string in step.
//
// A Controller belongs to exactly one open form. It runs in two directions:
//
//   - Hydration: an external query string (first load, back/forward
//     navigation, a freshly opened shared link) is decoded into a complete
//     state once the option metadata is known.
//   - Sync: after hydration, state changes are encoded and written back to
//     the URL with a non-navigating replace.
//
// The two directions would feed each other forever without a guard: the
// state produced by hydration would be written back, and the write would be
// observed as a query change. The controller breaks the cycle in two places.
// Query strings the controller wrote itself are recognised and ignored, and
// the first Sync after a hydration is a no-op as long as the state still
// equals the hydration snapshot.
//
// Controllers are not safe for concurrent use; the owner (a form session)
// drives one from a single goroutine.
package formsync
