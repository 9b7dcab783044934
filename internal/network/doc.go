// Package network manages the bin's WiFi connection through NetworkManager.
//
// Connect and Disconnect shell out to nmcli. Status combines
// `nmcli connection show --active` (is a wireless link up, on which
// device), `iw dev <dev> link` for the SSID (falling back to
// `nmcli dev wifi`), and `ip -f inet addr show <dev>` for the IPv4 address.
//
// Commands run through a Runner so tests can substitute canned output.
package network
