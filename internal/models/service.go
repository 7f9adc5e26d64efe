package models

// ServiceInfo describes the state of a single systemd unit.
type ServiceInfo struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Active      string `json:"active"`
	Enabled     string `json:"enabled"`
	Description string `json:"description"`
	Loaded      bool   `json:"loaded"`
}
