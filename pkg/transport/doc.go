// Package transport provides the per-request pipeline of the evileye
// gateway as net/http middleware.
//
// Every request passes, in order, through panic recovery, in-flight
// tracking, body capture, correlation tagging (request ID and client
// address) and request logging before authentication and dispatch. Each
// stage stores what it learns in the request context; accessors such as
// [RequestIDFromContext], [ClientAddressFromContext] and [BodyFromContext]
// read it back in later stages and in operation resolvers.
package transport
