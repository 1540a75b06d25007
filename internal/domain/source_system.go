package domain

import "time"

// SourceSystem is an upstream system whose tables are ingested.
// Created by configuration import; read-only to the engine.
type SourceSystem struct {
	ID               int64
	Code             string
	Name             string
	Driver           string // database/sql driver name used by the SQL extractor
	DSN              string
	ExtractionMethod string
	ScheduleCron     *string
	IsActive         bool
	CreatedAt        time.Time
}
