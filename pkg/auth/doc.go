// Package auth verifies signed requests and turns the outcome into a
// caller identity.
//
// A [Negotiator] holds the registered credential strategies and resolves a
// claimed key id to a secret: with one strategy it delegates, with several
// it races them and takes the first success. Credential schemes
// (signature, bearer) are [Authenticator] implementations that use the
// negotiator; an [AuthChain] tries them in order with three-outcome
// voting.
//
// Authentication never rejects a request. The [Middleware] stores the
// verified identity in the request context, logs rejections, and leaves
// everything else anonymous; authorization is up to operation handlers.
package auth
