package models

// All lists every persisted model, in dependency order. SQLite-backed dev and
// test databases are created from it; Postgres uses the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Bid{},
		&Wallet{},
		&Transaction{},
		&Notification{},
		&NotificationRead{},
		&Rating{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
