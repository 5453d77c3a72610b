package api

import "time"

// StoreItem - одно конфигурационное сообщение в batch запросе.
type StoreItem struct {
	Data      []byte `json:"data"`
	Seqno     int64  `json:"seqno"`
	Namespace int    `json:"namespace"`
}

// BatchRequest сохраняет сообщения и удаляет устаревшие хеши одним запросом.
type BatchRequest struct {
	Stores []StoreItem `json:"stores"`
	Delete []string    `json:"delete,omitempty"`
}

// StoreItemResult - результат сохранения одного сообщения, в порядке запроса.
type StoreItemResult struct {
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

// BatchResponse представляет ответ на BatchRequest.
// Deleted содержит запрошенные хеши, которых больше нет в swarm.
type BatchResponse struct {
	Stores  []StoreItemResult `json:"stores"`
	Deleted []string          `json:"deleted"`
}

// Message - сообщение, хранящееся в swarm.
type Message struct {
	StoredAt  time.Time `json:"stored_at"`
	Hash      string    `json:"hash"`
	Data      []byte    `json:"data"`
	ID        int64     `json:"id"`
	Seqno     int64     `json:"seqno"`
	Namespace int       `json:"namespace"`
}

// RetrieveResponse - сообщения namespace с ID больше since.
// Cursor - наибольший ID в swarm для namespace, передается в следующий запрос.
type RetrieveResponse struct {
	Messages []Message `json:"messages"`
	Cursor   int64     `json:"cursor"`
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Time   time.Time `json:"time"`
	Status string    `json:"status"`
}
