package models

// Bare JSON string bodies returned to clients. Error details never leave
// the server; they are logged instead.
const (
	MsgInternalServerError = "Internal Server Error"
	MsgBadRequest          = "Bad Request"
	MsgUnauthorized        = "Unauthorized"
	MsgTooManyRequests     = "Too Many Requests"
)

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy", "degraded" or "unavailable"
	Uptime    string    `json:"uptime"`
	Driver    string    `json:"driver"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	MaxSessions    int   `json:"max_sessions"`
	LiveSessions   int   `json:"live_sessions"`
	ActiveSessions int   `json:"active_sessions"`
	Retired        int64 `json:"retired"`
}
