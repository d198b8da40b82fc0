package channel

import (
	"context"

	"github.com/fluxorio/wordbridge/pkg/core"
)

// Offline stands in for a channel that could not be opened. Every operation
// fails with the original connect error so callers log it and carry on.
type Offline struct {
	kind  string
	cause error
}

// NewOffline returns a Channel whose operations report cause.
func NewOffline(kind string, cause error) *Offline {
	return &Offline{kind: kind, cause: cause}
}

func (o *Offline) Kind() string { return o.kind }

func (o *Offline) Connected() bool { return false }

func (o *Offline) Publish(_ context.Context, topic string, _ []byte) error {
	return &core.Error{Code: core.CodeChannelConnect, Message: "channel offline, dropped publish to " + topic, Err: o.cause}
}

func (o *Offline) Subscribe(topic string, _ Handler, _ ...SubscribeOption) (Subscription, error) {
	return nil, core.NewSubscribeError(topic, o.cause)
}

func (o *Offline) Close() error { return nil }
