package ble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/neobin-core/internal/lid"
	"github.com/nerrad567/neobin-core/internal/notify"
)

// LidService is the part of lid.Controller the observables drive.
type LidService interface {
	Execute(ctx context.Context, cmd lid.Command) error
	Read(selector string) (lid.Event, error)
}

// Subscription is the notification state of the inform observable.
// notify.Channel implements it.
type Subscription interface {
	StartNotify(auth notify.Authenticator) error
	StopNotify()
}

// AuthHandler presents written bytes as the device credential.
type AuthHandler struct {
	Lid LidService
}

// Write implements Writer.
func (h AuthHandler) Write(ctx context.Context, _ Request, value []byte) error {
	return h.Lid.Execute(ctx, lid.Authenticate{Credential: value})
}

// CommandHandler decodes written text commands and executes them.
type CommandHandler struct {
	Lid LidService
}

// Write implements Writer.
func (h CommandHandler) Write(ctx context.Context, _ Request, value []byte) error {
	cmd, err := lid.ParseCommand(value)
	if err != nil {
		return err
	}
	return h.Lid.Execute(ctx, cmd)
}

// InformHandler answers state reads and manages notification subscription.
type InformHandler struct {
	Lid     LidService
	Channel Subscription
	Session notify.Authenticator
}

// informSelectors are read, in order, for an inform read.
var informSelectors = []string{lid.SelectorStatus, lid.SelectorOpened, lid.SelectorAngle}

// Read implements Reader. GATT reads carry no selector, so the value is a
// JSON object holding every selector, e.g. {"Angle":0,"Opened":false,"Status":true}.
func (h InformHandler) Read(_ context.Context, _ Request) ([]byte, error) {
	out := make(map[string]any, len(informSelectors))
	for _, sel := range informSelectors {
		evt, err := h.Lid.Read(sel)
		if err != nil {
			return nil, err
		}
		out[evt.Key] = evt.Value
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding inform value: %w", err)
	}
	return data, nil
}

// StartNotify implements Subscriber.
func (h InformHandler) StartNotify() error {
	return h.Channel.StartNotify(h.Session)
}

// StopNotify implements Subscriber.
func (h InformHandler) StopNotify() {
	h.Channel.StopNotify()
}

// Observables returns the NeoBin auth, command and inform observables.
func Observables(uuids UUIDs, svc LidService, channel Subscription, session notify.Authenticator) []Observable {
	return []Observable{
		{UUID: uuids.Auth, Handler: AuthHandler{Lid: svc}},
		{UUID: uuids.Command, Handler: CommandHandler{Lid: svc}},
		{UUID: uuids.Inform, Handler: InformHandler{Lid: svc, Channel: channel, Session: session}},
	}
}
