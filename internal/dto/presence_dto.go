package dto

// ConnectRequest registers an ephemeral connection for the caller.
type ConnectRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,min=1,max=128"`
}

// ConnectResponse acknowledges the registration and reports who is online.
type ConnectResponse struct {
	ConnectionID string   `json:"connection_id"`
	OnlineUsers  []string `json:"online_users"`
}

// DisconnectRequest removes a previously registered connection.
type DisconnectRequest struct {
	ConnectionID string `json:"connection_id" validate:"required,min=1,max=128"`
}
