// Package eventlog is the event-sourcing core the gateway is built on.
//
// Event types are registered as [Definition] values that declare their
// props, an optional pre-write validation and the projection that folds an
// event into the application [State]. [Log.Apply] validates, projects and
// persists one event at a time; the resulting state and stream position
// are readable at any time. Records live in a [Backend]; ephemeral
// backends allow the log to be restarted from an initial state.
package eventlog
