package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick       Event = "price_tick"
	EventOrderUpdate     Event = "order_update"
	EventOrderAmbiguous  Event = "order_ambiguous"
	EventPositionOpened  Event = "position_opened"
	EventPositionClosed  Event = "position_closed"
	EventRiskRejected    Event = "risk_rejected"
	EventConnectionLost  Event = "connection_lost"
	EventReconciled      Event = "reconciled"
	EventStrategyDecided Event = "strategy_decided"
)
