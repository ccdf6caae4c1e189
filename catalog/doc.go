// Package catalog retrieves the full list of GitHub repositories affiliated
// with the authenticated user from the GraphQL API.
//
// Listing walks the viewer's repository connection with a fixed page size of
// 100, following `pageInfo.hasNextPage`/`pageInfo.endCursor` until the
// catalog is complete. Null entries within a page are skipped. Any request
// or query error aborts the whole listing, a partial catalog is never
// returned.
//
// Failures are classified so callers can tell an unreachable or misbehaving
// endpoint (*TransportError) apart from a well-formed response carrying
// GraphQL errors (*QueryError), for example an expired or under-scoped
// token.
package catalog
