package lid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Command prefixes and keywords of the text protocol.
const (
	prefixAngle    = "ANGLE:"
	prefixConnect  = "CONNECT:"
	prefixSettings = "SETTINGS:"

	keywordOpen           = "OPEN"
	keywordClose          = "CLOSE"
	keywordStatus         = "STATUS"
	keywordSettings       = "SETTINGS"
	keywordGetSettings    = "GET_SETTINGS"
	keywordWifiDisconnect = "WIFI_DISCONNECT"
	keywordGetWifi        = "GET_WIFI"
)

// keywords maps exact-match keywords to their zero-argument commands.
var keywords = map[string]Command{
	keywordOpen:           Open{},
	keywordClose:          Close{},
	keywordStatus:         ToggleStatus{},
	keywordSettings:       GetSettings{},
	keywordGetSettings:    GetSettings{},
	keywordWifiDisconnect: WifiDisconnect{},
	keywordGetWifi:        GetWifiStatus{},
}

// settingsPayload is the JSON body of a SETTINGS: command.
type settingsPayload struct {
	Type  *string         `json:"type"`
	Key   *string         `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ParseCommand decodes an inbound write into a Command.
//
// Grammar:
//
//	ANGLE:<signed-int>          SetAngle
//	CONNECT:<ssid>:<password>   WifiConnect (password may contain ':')
//	SETTINGS:<json>             UpdateSettings, json = {"type","key","value"}
//	OPEN | CLOSE | STATUS | SETTINGS | GET_SETTINGS | WIFI_DISCONNECT | GET_WIFI
//
// Errors wrap ErrEncoding, ErrUnknownCommand, or ErrMalformed.
func ParseCommand(payload []byte) (Command, error) {
	if !utf8.Valid(payload) {
		return nil, ErrEncoding
	}
	text := string(payload)

	switch {
	case strings.HasPrefix(text, prefixAngle):
		return parseAngle(text[len(prefixAngle):])
	case strings.HasPrefix(text, prefixConnect):
		return parseConnect(text[len(prefixConnect):])
	case strings.HasPrefix(text, prefixSettings):
		return parseSettings(text[len(prefixSettings):])
	}

	if cmd, ok := keywords[text]; ok {
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, truncate(text, 32))
}

func parseAngle(arg string) (Command, error) {
	angle, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("%w: angle %q is not an integer", ErrMalformed, truncate(arg, 16))
	}
	return SetAngle{Angle: angle}, nil
}

func parseConnect(arg string) (Command, error) {
	ssid, password, ok := strings.Cut(arg, ":")
	if !ok {
		return nil, fmt.Errorf("%w: expected CONNECT:<ssid>:<password>", ErrMalformed)
	}
	if ssid == "" {
		return nil, fmt.Errorf("%w: empty ssid", ErrMalformed)
	}
	return WifiConnect{SSID: ssid, Password: password}, nil
}

func parseSettings(arg string) (Command, error) {
	var p settingsPayload
	if err := json.Unmarshal([]byte(arg), &p); err != nil {
		return nil, fmt.Errorf("%w: settings body: %v", ErrMalformed, err)
	}
	if p.Type == nil || p.Key == nil || len(p.Value) == 0 {
		return nil, fmt.Errorf("%w: settings body needs type, key and value", ErrMalformed)
	}

	value, err := settingValue(p.Value)
	if err != nil {
		return nil, err
	}
	return UpdateSettings{Type: *p.Type, Key: *p.Key, Value: value}, nil
}

// settingValue accepts a JSON integer or a string holding one.
func settingValue(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr != nil {
			return 0, fmt.Errorf("%w: setting value %q is not an integer", ErrMalformed, truncate(s, 16))
		}
		return v, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: setting value must be an integer", ErrMalformed)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("%w: setting value %s is not an integer", ErrMalformed, n)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
