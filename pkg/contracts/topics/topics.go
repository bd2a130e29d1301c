package topics

const (
	// Ciclo de vida das apostas on-chain
	BetLifecycle = "bet_lifecycle"

	// DLQs
	BetLifecycleDLQ = "bet_lifecycle_dlq"
)
