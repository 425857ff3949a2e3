package messages

// JoinRequest is sent by a client after connecting to request joining the game.
type JoinRequest struct {
	Version        string
	PlayerName     string
	ReconnectToken string
}

// JoinAccepted is sent by the server when a client's join request is accepted.
// The full state of the session follows as a FullSync.
type JoinAccepted struct {
	PlayerID       uint32
	ReconnectToken string
	ServerName     string
	TickRate       int
	Level          string
}

// JoinRejected is sent by the server when a client's join request is rejected.
type JoinRejected struct {
	Reason string
}
