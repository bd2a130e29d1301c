package ws

import "encoding/json"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Topic: obrigatório para subscribe/unsubscribe ("state" ou "notification")
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Update é o envelope que circula no canal Redis e vai para os clientes
type Update struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
