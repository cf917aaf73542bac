// Package cmd is the command core the Discord adapter builds on: a command
// has a name, a description and a Run method, and middleware wraps it
// without hiding the underlying value.
package cmd

import "context"

// Invocation is the input handed to a command. Data holds the adapter's
// context, such as a slash or component interaction.
type Invocation struct {
	Data interface{}
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
