// Package mcpserver exposes the registered commands and queries as Model
// Context Protocol tools over streamable HTTP.
//
// Every command becomes a tool named "command_<name>" and every query a
// tool named "query_<name>". A tool's input schema is derived from the
// operation's fields. Tool calls run the same invocables as the GraphQL
// resolvers and return the JSON encoded result as text content.
package mcpserver
