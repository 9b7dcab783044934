package lid

import (
	"context"
	"errors"
	"sync"
)

type fakeActuator struct {
	mu     sync.Mutex
	angles []int
	err    error
}

func (f *fakeActuator) SetAngle(_ context.Context, degrees int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.angles = append(f.angles, degrees)
	return f.err
}

func (f *fakeActuator) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.angles...)
}

type fakeStore struct {
	mu    sync.Mutex
	saved []Settings
	err   error
}

func (f *fakeStore) Load() (Settings, error) { return DefaultSettings(), nil }

func (f *fakeStore) Save(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s)
	return nil
}

type fakeNetwork struct {
	mu            sync.Mutex
	status        WifiStatus
	statusErr     error
	connectErr    error
	disconnectErr []error
	connects      int
	disconnects   int
}

func (f *fakeNetwork) Status(context.Context) (WifiStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeNetwork) Connect(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeNetwork) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	if len(f.disconnectErr) == 0 {
		return nil
	}
	err := f.disconnectErr[0]
	f.disconnectErr = f.disconnectErr[1:]
	return err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeNotifier) Notify(evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeNotifier) all() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (f *fakeRecorder) RecordTransition(_ context.Context, t Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
	return nil
}

var errBoom = errors.New("boom")

type fixture struct {
	ctrl     *Controller
	session  *Session
	actuator *fakeActuator
	store    *fakeStore
	network  *fakeNetwork
	notifier *fakeNotifier
	recorder *fakeRecorder
}

func newFixture(t interface{ Fatalf(string, ...any) }, authenticated bool) *fixture {
	f := &fixture{
		session:  NewSession([]byte("NeoBin")),
		actuator: &fakeActuator{},
		store:    &fakeStore{},
		network:  &fakeNetwork{},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
	ctrl, err := NewController(Deps{
		Session:  f.session,
		Actuator: f.actuator,
		Store:    f.store,
		Network:  f.network,
		Notifier: f.notifier,
		Recorder: f.recorder,
	}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	f.ctrl = ctrl
	if authenticated {
		if err := f.session.Authenticate([]byte("NeoBin")); err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
	}
	return f
}
