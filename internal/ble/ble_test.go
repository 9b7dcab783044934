package ble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/neobin-core/internal/lid"
	"github.com/nerrad567/neobin-core/internal/notify"
)

var testUUIDs = UUIDs{
	Service: "0000180d-0000-1000-8000-00805f9b34fb",
	Auth:    "00002a37-0000-1000-8000-00805f9b34fb",
	Command: "00002a38-0000-1000-8000-00805f9b34fb",
	Inform:  "00002a39-0000-1000-8000-00805f9b34fb",
}

// fakeLid records executed commands and answers reads from a fixed state.
type fakeLid struct {
	mu       sync.Mutex
	executed []lid.Command
	execErr  error
	readErr  error
	state    lid.State
}

func (f *fakeLid) Execute(_ context.Context, cmd lid.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, cmd)
	return f.execErr
}

func (f *fakeLid) Read(selector string) (lid.Event, error) {
	if f.readErr != nil {
		return lid.Event{}, f.readErr
	}
	switch selector {
	case lid.SelectorStatus:
		return lid.Event{Key: lid.KeyStatus, Value: f.state.Status}, nil
	case lid.SelectorOpened:
		return lid.Event{Key: lid.KeyOpened, Value: f.state.Opened}, nil
	case lid.SelectorAngle:
		return lid.Event{Key: lid.KeyAngle, Value: f.state.Angle}, nil
	}
	return lid.Event{}, fmt.Errorf("%w: %s", lid.ErrInvalidArgument, selector)
}

type readOnly struct{}

func (readOnly) Read(context.Context, Request) ([]byte, error) { return []byte("x"), nil }

type testRig struct {
	lid     *fakeLid
	session *lid.Session
	channel *notify.Channel
	p       *Peripheral
}

func newRig(t *testing.T) *testRig {
	t.Helper()

	r := &testRig{
		lid:     &fakeLid{state: lid.State{Angle: 0, Opened: false, Status: true}},
		session: lid.NewSession([]byte("NeoBin")),
		channel: notify.NewChannel("inform"),
	}
	p, err := NewPeripheral(nil, Config{
		AppPath:     "/com/heral/neobin",
		ServiceUUID: testUUIDs.Service,
		Advertisement: AdvertisementConfig{
			LocalName:        "NeoBin",
			ServiceUUIDs:     []string{testUUIDs.Service},
			ManufacturerID:   0xABCD,
			ManufacturerData: []byte("HeralNeoBin"),
		},
	}, Observables(testUUIDs, r.lid, r.channel, r.session)...)
	require.NoError(t, err)
	r.p = p
	r.channel.Attach(p.Characteristic(testUUIDs.Inform))
	return r
}

func TestObservable_Flags(t *testing.T) {
	tests := []struct {
		name    string
		handler any
		want    []string
	}{
		{"auth", AuthHandler{}, []string{FlagWrite}},
		{"command", CommandHandler{}, []string{FlagWrite}},
		{"inform", InformHandler{}, []string{FlagRead, FlagNotify}},
		{"read only", readOnly{}, []string{FlagRead}},
		{"nothing", struct{}{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Observable{UUID: "u", Handler: tt.handler}.Flags())
		})
	}
}

func TestNewPeripheral_Validation(t *testing.T) {
	good := Config{AppPath: "/com/heral/neobin", ServiceUUID: testUUIDs.Service}
	obs := Observable{UUID: testUUIDs.Auth, Handler: AuthHandler{}}

	tests := []struct {
		name string
		cfg  Config
		obs  []Observable
		want error
	}{
		{name: "no observables", cfg: good, want: ErrNoObservables},
		{name: "no capability", cfg: good, obs: []Observable{{UUID: "u", Handler: struct{}{}}}, want: ErrNoCapability},
		{name: "duplicate uuid", cfg: good, obs: []Observable{obs, obs}, want: ErrDuplicateUUID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPeripheral(nil, tt.cfg, tt.obs...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewPeripheral(nil, Config{AppPath: "relative", ServiceUUID: "s"}, obs)
	assert.Error(t, err, "relative path")
	_, err = NewPeripheral(nil, Config{AppPath: "/com/heral/neobin"}, obs)
	assert.Error(t, err, "missing service UUID")
	_, err = NewPeripheral(nil, good, Observable{Handler: AuthHandler{}})
	assert.Error(t, err, "missing observable UUID")
}

func TestPeripheral_StartWithoutConnection(t *testing.T) {
	r := newRig(t)
	assert.ErrorIs(t, r.p.Start(context.Background()), ErrNoConnection)
	assert.NoError(t, r.p.Close())
	assert.Error(t, r.p.HealthCheck(context.Background()))
}

func TestPeripheral_ManagedObjects(t *testing.T) {
	r := newRig(t)
	objects := r.p.managedObjects()
	require.Len(t, objects, 4)

	service := objects["/com/heral/neobin/service0"][gattServiceIface]
	require.NotNil(t, service)
	assert.Equal(t, testUUIDs.Service, service["UUID"].Value())
	assert.Equal(t, true, service["Primary"].Value())
	assert.Equal(t, []dbus.ObjectPath{
		"/com/heral/neobin/service0/char0",
		"/com/heral/neobin/service0/char1",
		"/com/heral/neobin/service0/char2",
	}, service["Characteristics"].Value())

	inform := objects["/com/heral/neobin/service0/char2"][gattCharacteristicIface]
	require.NotNil(t, inform)
	assert.Equal(t, testUUIDs.Inform, inform["UUID"].Value())
	assert.Equal(t, dbus.ObjectPath("/com/heral/neobin/service0"), inform["Service"].Value())
	assert.Equal(t, []string{FlagRead, FlagNotify}, inform["Flags"].Value())
	assert.Equal(t, false, inform["Notifying"].Value())

	auth := objects["/com/heral/neobin/service0/char0"][gattCharacteristicIface]
	require.NotNil(t, auth)
	assert.Equal(t, []string{FlagWrite}, auth["Flags"].Value())
	_, hasNotifying := auth["Notifying"]
	assert.False(t, hasNotifying)
}

func TestAuthWrite(t *testing.T) {
	r := newRig(t)
	c := r.p.Characteristic(testUUIDs.Auth)

	assert.Nil(t, c.WriteValue([]byte("NeoBin"), nil))
	require.Len(t, r.lid.executed, 1)
	assert.Equal(t, lid.Authenticate{Credential: []byte("NeoBin")}, r.lid.executed[0])

	r.lid.execErr = lid.ErrAuthFailed
	dErr := c.WriteValue([]byte("wrong"), nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNameFailed, dErr.Name)
}

func TestCommandWrite(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		execErr  error
		wantCmd  lid.Command
		wantName string
	}{
		{name: "open", value: "OPEN", wantCmd: lid.Open{}},
		{name: "angle", value: "ANGLE:90", wantCmd: lid.SetAngle{Angle: 90}},
		{name: "malformed", value: "ANGLE:ninety", wantName: errNameInvalidValueLength},
		{name: "unknown", value: "JUMP", wantName: errNameFailed},
		{name: "not authenticated", value: "CLOSE", execErr: lid.ErrNotAuthenticated, wantCmd: lid.Close{}, wantName: errNameFailed},
		{name: "out of range", value: "ANGLE:200", execErr: lid.ErrInvalidArgument, wantCmd: lid.SetAngle{Angle: 200}, wantName: errNameInvalidValueLength},
		{name: "device off", value: "OPEN", execErr: lid.ErrDeviceOff, wantCmd: lid.Open{}, wantName: errNameFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.lid.execErr = tt.execErr
			c := r.p.Characteristic(testUUIDs.Command)

			dErr := c.WriteValue([]byte(tt.value), map[string]dbus.Variant{
				"device": dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")),
			})

			if tt.wantName == "" {
				assert.Nil(t, dErr)
			} else {
				require.NotNil(t, dErr)
				assert.Equal(t, tt.wantName, dErr.Name)
			}
			if tt.wantCmd != nil {
				assert.Equal(t, []lid.Command{tt.wantCmd}, r.lid.executed)
			} else {
				assert.Empty(t, r.lid.executed)
			}
		})
	}
}

func TestInformRead(t *testing.T) {
	r := newRig(t)
	r.lid.state = lid.State{Angle: 180, Opened: true, Status: true}
	c := r.p.Characteristic(testUUIDs.Inform)

	value, dErr := c.ReadValue(nil)
	require.Nil(t, dErr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(value, &got))
	assert.Equal(t, map[string]any{"Angle": float64(180), "Opened": true, "Status": true}, got)

	tail, dErr := c.ReadValue(map[string]dbus.Variant{"offset": dbus.MakeVariant(uint16(len(value) - 1))})
	require.Nil(t, dErr)
	assert.Equal(t, []byte("}"), tail)

	_, dErr = c.ReadValue(map[string]dbus.Variant{"offset": dbus.MakeVariant(uint16(len(value) + 1))})
	require.NotNil(t, dErr)
	assert.Equal(t, errNameInvalidOffset, dErr.Name)

	r.lid.readErr = lid.ErrNotAuthenticated
	_, dErr = c.ReadValue(nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNameFailed, dErr.Name)
}

func TestUnsupportedOperations(t *testing.T) {
	r := newRig(t)

	_, dErr := r.p.Characteristic(testUUIDs.Auth).ReadValue(nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNameNotSupported, dErr.Name)

	dErr = r.p.Characteristic(testUUIDs.Inform).WriteValue([]byte("OPEN"), nil)
	require.NotNil(t, dErr)
	assert.Equal(t, errNameNotSupported, dErr.Name)

	dErr = r.p.Characteristic(testUUIDs.Command).StartNotify()
	require.NotNil(t, dErr)
	assert.Equal(t, errNameNotSupported, dErr.Name)
}

func TestInformNotify(t *testing.T) {
	r := newRig(t)
	c := r.p.Characteristic(testUUIDs.Inform)

	// Refused until the session is authenticated.
	dErr := c.StartNotify()
	require.NotNil(t, dErr)
	assert.Equal(t, errNameFailed, dErr.Name)
	assert.False(t, c.Notifying())
	assert.False(t, r.channel.Send(lid.Event{Key: lid.KeyAngle, Value: 90}))

	require.NoError(t, r.session.Authenticate([]byte("NeoBin")))
	require.Nil(t, c.StartNotify())
	require.Nil(t, c.StartNotify())
	assert.True(t, c.Notifying())

	assert.True(t, r.channel.Send(lid.Event{Key: lid.KeyAngle, Value: 90}))
	assert.Equal(t, []byte(`{"Angle":90}`), c.Value())

	require.Nil(t, c.StopNotify())
	assert.False(t, c.Notifying())
	assert.False(t, r.channel.Send(lid.Event{Key: lid.KeyOpened, Value: true}))
	assert.Equal(t, []byte(`{"Angle":90}`), c.Value())
}

func TestToDBusError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{lid.ErrMalformed, errNameInvalidValueLength},
		{fmt.Errorf("%w: bad", lid.ErrInvalidArgument), errNameInvalidValueLength},
		{lid.ErrUnknownCommand, errNameFailed},
		{lid.ErrEncoding, errNameFailed},
		{lid.ErrNotAuthenticated, errNameFailed},
		{lid.ErrConfigStore, errNameFailed},
		{ErrInvalidOffset, errNameInvalidOffset},
		{ErrNotSupported, errNameNotSupported},
		{errors.New("boom"), errNameFailed},
	}
	for _, tt := range tests {
		got := toDBusError(tt.err)
		require.NotNil(t, got, tt.err)
		assert.Equal(t, tt.want, got.Name, tt.err)
		assert.Equal(t, []interface{}{tt.err.Error()}, got.Body)
	}
	assert.Nil(t, toDBusError(nil))
}

func TestParseRequest(t *testing.T) {
	req := parseRequest(map[string]dbus.Variant{
		"device": dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci0/dev_11_22_33_44_55_66")),
		"offset": dbus.MakeVariant(uint16(4)),
		"mtu":    dbus.MakeVariant(uint16(185)),
		"type":   dbus.MakeVariant("request"),
	})
	assert.Equal(t, Request{Device: "/org/bluez/hci0/dev_11_22_33_44_55_66", Offset: 4, MTU: 185}, req)

	assert.Equal(t, Request{}, parseRequest(map[string]dbus.Variant{"offset": dbus.MakeVariant("4")}))
	assert.Equal(t, Request{}, parseRequest(nil))
}

func TestSelectAdapter(t *testing.T) {
	le := map[string]map[string]dbus.Variant{
		adapterIface:            {},
		advertisingManagerIface: {},
		gattManagerIface:        {},
	}
	classic := map[string]map[string]dbus.Variant{adapterIface: {}}
	device := map[string]map[string]dbus.Variant{"org.bluez.Device1": {}}

	objects := managedObjects{
		"/org/bluez/hci1":                   le,
		"/org/bluez/hci0":                   le,
		"/org/bluez/hci2":                   classic,
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE": device,
	}

	got, err := selectAdapter(objects, "")
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), got)

	got, err = selectAdapter(objects, "hci1")
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), got)

	_, err = selectAdapter(objects, "hci2")
	assert.ErrorIs(t, err, ErrNoAdapter)

	_, err = selectAdapter(managedObjects{"/org/bluez/hci2": classic}, "")
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestAdvertisementProperties(t *testing.T) {
	r := newRig(t)
	props := r.p.adv.properties()

	assert.Equal(t, "peripheral", props["Type"])
	assert.Equal(t, "NeoBin", props["LocalName"])
	assert.Equal(t, []string{testUUIDs.Service}, props["ServiceUUIDs"])
	assert.Equal(t, []string{"tx-power"}, props["Includes"])

	mfr, ok := props["ManufacturerData"].(map[uint16]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, []byte("HeralNeoBin"), mfr[0xABCD].Value())

	m := r.p.adv.propMap()
	assert.Len(t, m[advertisementIface], len(props))
}

func TestAgentAcceptsPairing(t *testing.T) {
	a := &agent{path: "/com/heral/neobin/agent", logger: noopLogger{}}
	dev := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

	assert.Nil(t, a.RequestConfirmation(dev, 123456))
	assert.Nil(t, a.RequestAuthorization(dev))
	assert.Nil(t, a.AuthorizeService(dev, testUUIDs.Service))
	assert.Nil(t, a.DisplayPasskey(dev, 123456, 0))
	assert.Nil(t, a.Cancel())
	assert.Nil(t, a.Release())

	pin, dErr := a.RequestPinCode(dev)
	assert.Nil(t, dErr)
	assert.Empty(t, strings.TrimSpace(pin))
}
