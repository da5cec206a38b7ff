// Package acl is the anti-corruption layer between quote-sync and the HTTP
// services it talks to. Nothing outside this package sees an external DTO.
//
// # Sources
//
// Two [ports.QuoteSource] implementations feed the reconciler:
//
//   - [PostsSource] reads a jsonplaceholder-style /posts listing and maps each
//     post onto a quote through a caller-supplied [FieldMapping].
//   - [FeedSource] reads another quote-sync instance's export document.
//
// Several sources can be combined with app.CombinedSource.
//
// # Service client
//
// [ServiceClient] speaks the quote-sync REST API and is what quotectl uses.
// Error bodies are mapped back to the domain errors that produced them, so a
// CLI command can branch on domain.IsConflict and friends.
//
// # Error mapping
//
// [MapHTTPError] turns failures into domain errors:
//
//   - transport errors, 429 and 5xx → [domain.ErrNetwork]
//   - 404 → [domain.ErrNotFound]
//   - 409 → [domain.ErrConflict]
//   - 400/422 → [domain.ErrValidation]
//   - 401/403 → [ErrAccessDenied]
//
// A recognised error code in the body takes precedence over the status.
// Bodies that do not decode are reported as [domain.ErrFormat].
package acl
