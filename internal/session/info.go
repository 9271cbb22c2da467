package session

// ProtocolVersion is the wire protocol generation this client speaks. The
// server reports its own during the handshake; a mismatch fails Connect.
const ProtocolVersion = 2

// ClientInfo identifies this client to the server during the handshake.
// Created once per connection and immutable afterwards.
type ClientInfo struct {
	ProtocolVersion int    `json:"protocol_version"`
	ClientID        string `json:"client_id"`
	LibraryVersion  string `json:"library_version"`
}

// ServerInfo is the server's half of the handshake: version and capability
// data valid for the lifetime of the connection.
type ServerInfo struct {
	ProtocolVersion int      `json:"protocol_version"`
	FirmwareVersion string   `json:"firmware_version"`
	SensorCount     int      `json:"sensor_count"`
	MaxBaudrate     int      `json:"max_baudrate,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
}
