package model

// Version constants for the ledger schema and engine.
const (
	// SchemaVersion is the on-disk ledger schema version (PRAGMA user_version).
	SchemaVersion = 2

	// EngineVersion is the palabria engine version.
	EngineVersion = "0.3.0"
)
