// Package registry holds the operations exposed through the GraphQL
// endpoint and compiles them into one executable schema.
//
// Commands wrap an event type: invoking one applies the event to the
// event log and returns either the position it was recorded at or the
// result of a shaping query. Queries read the current state, which is
// bound at invocation time, never at registration. Arbitrary type
// definitions and field resolvers can be added next to them.
//
// Registrations only record descriptors. BuildExecutor compiles the
// accumulated SDL and resolvers on first use after a change and caches
// the result until the next registration.
package registry
