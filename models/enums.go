package models

const (
	SyncTypeInventory = "inventory"
	SyncTypeOrders    = "orders"
)

const (
	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

const (
	SyncedOrderStatusPending = "pending"
	SyncedOrderStatusSuccess = "success"
	SyncedOrderStatusFailed  = "failed"
	SyncedOrderStatusSkipped = "skipped"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)
