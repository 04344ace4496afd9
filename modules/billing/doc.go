// Package billing exposes the entitlement core over HTTP: the paid-feature
// generation endpoint, the two payment webhooks, the checkout redirect and
// the read-only entitlement display used by profile pages.
//
// The package is glue only. Content generation and checkout creation are
// opaque collaborators behind interfaces; authentication is resolved by a
// caller-supplied AuthResolver so any verified-identity scheme can sit in
// front of the router.
package billing
