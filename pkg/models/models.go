package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Session{},
		&Channel{},
		&ChannelMember{},
		&User{},
		&Operator{},
		&ForwardRecord{},
		&MetricPoint{},
	}
}
