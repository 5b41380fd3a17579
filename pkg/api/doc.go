// Package api defines the wire types of the evileye gateway.
//
// The GraphQL endpoint accepts a [Request] either as a JSON body, as a raw
// "application/graphql" body, or as URL query parameters, and always answers
// with a [Response] carrying data and/or errors. Non-GraphQL failures
// (rate limiting, rejected origins, panics) use the [ErrorResponse] envelope.
//
// The package performs no I/O and depends only on the standard library.
package api
