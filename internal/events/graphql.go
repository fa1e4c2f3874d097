package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	OperationName string
	OperationType string
	Errors        int
	Duration      time.Duration
}

// AuthorizationDenied is emitted when the guard refuses a field before its
// resolver runs. Anonymous is set when the request carried no identity.
type AuthorizationDenied struct {
	Type      string
	Field     string
	Required  string
	Anonymous bool
}
