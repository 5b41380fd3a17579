package logging

// Log message catalog. Components log these constants so that log
// aggregation can match on stable strings.
const (
	MsgConfiguration         = "Evileye configuration."
	MsgStarted               = "Started process."
	MsgStopped               = "Stopped process."
	MsgNoChatOps             = "No Slack webhook configured. Slack alerts/notifications/logging disabled."
	MsgIncomingRequest       = "Incoming HTTP(S) request."
	MsgInvalidAuthorization  = "Invalid authorization header."
	MsgListenOnPort          = "Started listening on port."
	MsgStoppedListening      = "Stopped listening."
	MsgEventProjected        = "Event was projected."
	MsgEventProjectionFailed = "Event projection failed."
	MsgEventValidationFailed = "Event validation failed. (Pre validation - before event was written to event stream.)"
	MsgCommandCreated        = "New command created."
	MsgQueryCreated          = "New query created."
	MsgFragmentAdded         = "New graphql definition."
	MsgSchemaCompiled        = "Schema compiled."
	MsgSchemaCompileFailed   = "Schema compilation failed."
	MsgStrategyRegistered    = "Auth strategy registered."
	MsgRequestPanicked       = "Request handler panicked."
	MsgToolCalled            = "MCP tool called."
)
