// Package reporting implements report ingestion, chunked storage and the
// background verification of submitted report packages.
package reporting

import "verigate/pkg/domain"

// Status is the report verification state machine: accepted is the only
// non-terminal status; verified and failed are terminal.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusVerified, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// ReportStats tracks a single uploaded report package, keyed by the digest of
// its content. Stats are created on upload and mutated only through
// Filer.Update; they are never deleted so the audit trail survives terminal
// transitions.
type ReportStats struct {
	Submitter   domain.AID  `json:"submitter"`
	Filename    string      `json:"filename"`
	Status      Status      `json:"status"`
	ContentType string      `json:"contentType"`
	Size        uint64      `json:"size"`
	Message     string      `json:"message"`
}

// Manifest is the META-INF/reports.json descriptor inside a report package.
type Manifest struct {
	DocumentInfo *DocumentInfo `json:"documentInfo"`
}

// DocumentInfo carries the package's signature list. Signatures is a pointer
// so a manifest that omits the field entirely can be told apart from one with
// an empty list: the former is malformed, the latter simply signs nothing.
type DocumentInfo struct {
	Signatures *[]SignatureEntry `json:"signatures"`
}

// SignatureEntry names one signed file, the signer and their signatures.
type SignatureEntry struct {
	File string   `json:"file"`
	AID  string   `json:"aid"`
	Sigs []string `json:"sigs"`
}
