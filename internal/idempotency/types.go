package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string `dynamodbav:"idempotency_key"` // PK
	Status         string `dynamodbav:"status"`
	// Fingerprint identifies the request body the key was first used with.
	Fingerprint    string    `dynamodbav:"fingerprint,omitempty"`
	ResourceID     string    `dynamodbav:"resource_id,omitempty"`     // order id, refund id
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Decision tells the caller what to do with a request carrying a key.
type Decision int

const (
	// Proceed: the caller owns the key and must MarkDone or MarkFailed.
	Proceed Decision = iota
	// Replay: the stored response must be returned unchanged.
	Replay
	// Busy: another request holding the key has not finished.
	Busy
)
