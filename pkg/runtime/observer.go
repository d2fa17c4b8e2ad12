package runtime

import (
	"context"
	"time"

	"github.com/rendis/chatflow/pkg/schema"
)

// Event is one observable step of a run: a lifecycle change of the run or
// of a flow invocation, or an exchange with the conversation partner.
type Event struct {
	RunID     string                  `json:"run_id"`
	Type      string                  `json:"type"`
	Flow      string                  `json:"flow,omitempty"`
	Depth     int                     `json:"depth,omitempty"`
	Status    schema.InvocationStatus `json:"status,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Tributary string                  `json:"tributary,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Time      time.Time               `json:"time"`
}

// Observer receives run events in order. A returned error aborts the run.
type Observer interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Observers fans events out to every non-nil observer, stopping at the
// first error.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) OnEvent(ctx context.Context, ev Event) error {
	for _, o := range m {
		if err := o.OnEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
