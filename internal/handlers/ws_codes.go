package handlers

// Custom WebSocket close codes used by the sync bridge. These give clients a
// more specific reason for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected without the lobby-sync subprotocol.
	InvalidTokenError   = 3001 // Bearer token was missing, invalid or expired.
)
