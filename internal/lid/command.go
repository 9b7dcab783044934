package lid

// Command is a decoded request for the Controller.
//
// The set of commands is closed: only types in this package implement it,
// and Controller.Execute handles each of them.
type Command interface {
	// Name returns a stable identifier used in logs and history.
	Name() string

	command()
}

// Authenticate presents a credential to the session.
type Authenticate struct {
	Credential []byte
}

// SetAngle moves the lid to an absolute angle in degrees.
type SetAngle struct {
	Angle int
}

// Open moves the lid to the configured maximum angle.
type Open struct{}

// Close moves the lid to the configured minimum angle.
type Close struct{}

// ToggleStatus switches the device on or off.
type ToggleStatus struct{}

// UpdateSettings changes one persisted setting.
// Type names the settings section; only "settings" exists.
type UpdateSettings struct {
	Type  string
	Key   string
	Value int
}

// GetSettings requests maxAngle and detectDistance notifications.
type GetSettings struct{}

// GetWifiStatus requests a WiFiConnectionData notification.
type GetWifiStatus struct{}

// WifiDisconnect disconnects the wireless interface.
type WifiDisconnect struct{}

// WifiConnect joins a wireless network.
type WifiConnect struct {
	SSID     string
	Password string
}

func (Authenticate) Name() string   { return "Authenticate" }
func (SetAngle) Name() string       { return "SetAngle" }
func (Open) Name() string           { return "Open" }
func (Close) Name() string          { return "Close" }
func (ToggleStatus) Name() string   { return "ToggleStatus" }
func (UpdateSettings) Name() string { return "UpdateSettings" }
func (GetSettings) Name() string    { return "GetSettings" }
func (GetWifiStatus) Name() string  { return "GetWifiStatus" }
func (WifiDisconnect) Name() string { return "WifiDisconnect" }
func (WifiConnect) Name() string    { return "WifiConnect" }

func (Authenticate) command()   {}
func (SetAngle) command()       {}
func (Open) command()           {}
func (Close) command()          {}
func (ToggleStatus) command()   {}
func (UpdateSettings) command() {}
func (GetSettings) command()    {}
func (GetWifiStatus) command()  {}
func (WifiDisconnect) command() {}
func (WifiConnect) command()    {}
