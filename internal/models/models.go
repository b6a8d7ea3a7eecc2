// Package models defines the persisted record types of the router.
package models

import "time"

// AuditEventType classifies an audit record.
type AuditEventType string

const (
	AuditRequest          AuditEventType = "request"
	AuditToolCall         AuditEventType = "mcp_tool_call"
	AuditSelection        AuditEventType = "mcp_service_selection"
	AuditGovernanceDenied AuditEventType = "governance_denied"
)

// GenesisHash is the previous hash of the first record in a chain.
const GenesisHash = "genesis"

// AuditEvent is one entry of the append-only, hash-chained audit log.
type AuditEvent struct {
	ID                    string         `json:"id"`
	Type                  AuditEventType `json:"type"`
	Method                string         `json:"method"`
	Path                  string         `json:"path"`
	ClientIdentityPresent bool           `json:"client_identity_present"`
	Service               string         `json:"service,omitempty"`
	Tool                  string         `json:"tool,omitempty"`
	Outcome               string         `json:"outcome,omitempty"`
	Details               string         `json:"details,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
	PreviousHash          string         `json:"previous_hash"`
	Hash                  string         `json:"hash"`
}
