package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/saraya-erp/saraya-erp/internal/events"
)

// EventsCLI publishes finance events by hand, e.g. to replay a dead letter.
type EventsCLI struct {
	publisher events.Publisher
}

// NewEventsCLI wraps publisher.
func NewEventsCLI(publisher events.Publisher) *EventsCLI {
	return &EventsCLI{publisher: publisher}
}

// PublishOptions configures a publish run.
type PublishOptions struct {
	Type       string
	HospitalID int64
	// Payload is the raw JSON body of the event.
	Payload io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// PublishCommand wraps the payload in an envelope and publishes it. It
// returns the process exit code.
func (c *EventsCLI) PublishCommand(ctx context.Context, opts PublishOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	typ := events.Type(opts.Type)
	if !slices.Contains(events.Types, typ) {
		fmt.Fprintf(opts.Stderr, "unknown event type %q\n", opts.Type)
		return 2
	}
	if opts.HospitalID <= 0 {
		fmt.Fprintln(opts.Stderr, "hospital id must be positive")
		return 2
	}
	if opts.Payload == nil {
		fmt.Fprintln(opts.Stderr, "payload is required")
		return 2
	}
	raw, err := io.ReadAll(opts.Payload)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "read payload: %v\n", err)
		return 1
	}
	if !json.Valid(raw) {
		fmt.Fprintln(opts.Stderr, "payload is not valid JSON")
		return 2
	}
	env, err := events.New(typ, opts.HospitalID, json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "build envelope: %v\n", err)
		return 1
	}
	if err := c.publisher.Publish(ctx, env); err != nil {
		fmt.Fprintf(opts.Stderr, "publish: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "published %s %s\n", env.Type, env.ID)
	return 0
}
