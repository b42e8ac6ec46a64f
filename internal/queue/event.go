// Package queue defines message payloads exchanged over the message broker.
package queue

// VerificationQueue is the durable queue verification results are sent to.
const VerificationQueue = "verification.completed"

// VerificationCompletedEvent is published after a callback has been stored.
// It carries enough for downstream consumers to log or notify without
// querying the primary database.
type VerificationCompletedEvent struct {
	Token       string `json:"token"`
	DiscordID   int64  `json:"discord_id,string"`
	Username    string `json:"username"`
	DaysOld     int    `json:"days_old"`
	Verified    bool   `json:"verified"`
	Rewarded    bool   `json:"rewarded"`
	Balance     int64  `json:"balance,omitempty"`
	CompletedAt string `json:"completed_at"`
}
