package dto

type ReceiptResponse struct {
	Op        string `json:"op"`
	BetID     uint64 `json:"betId,omitempty"`
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"` // tipo da taxonomia (ex.: "invalid state")
}
