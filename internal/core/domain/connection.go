package domain

// ConnectionState is the lifecycle state of one physical connection.
//
// Transitions: connecting → active ⇄ idle → disconnected. A failed
// handshake goes straight from connecting to disconnected; disconnected
// is terminal.
type ConnectionState string

const (
	ConnConnecting   ConnectionState = "connecting"
	ConnActive       ConnectionState = "active"
	ConnIdle         ConnectionState = "idle"
	ConnDisconnected ConnectionState = "disconnected"
)

// DisconnectReason records why a connection was closed.
type DisconnectReason string

const (
	ReasonClientClosed   DisconnectReason = "client_closed"
	ReasonInactive       DisconnectReason = "inactive"
	ReasonSendBufferFull DisconnectReason = "send_buffer_full"
	ReasonServerShutdown DisconnectReason = "server_shutdown"
)
