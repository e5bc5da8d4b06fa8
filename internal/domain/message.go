package domain

// TaskMessage is the hand-off from ingestion to the processing pool
type TaskMessage struct {
	ReferenceID string `json:"reference_id"`
	DeliveryTag uint64 `json:"-"`
}
