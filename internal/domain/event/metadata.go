package event

import "encoding/json"

// Metadata is the closed set of notification metadata shapes. Each
// notification kind carries exactly one of these; the union replaces the
// free-form maps the feed would otherwise accumulate.
type Metadata interface {
	MetadataKind() string
}

// AssignedMetadata accompanies an "you were assigned" notification
type AssignedMetadata struct {
	AssignedBy string `json:"assigned_by"`
}

func (AssignedMetadata) MetadataKind() string { return "assigned" }

// StatusChangedMetadata accompanies a task status change notification
type StatusChangedMetadata struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

func (StatusChangedMetadata) MetadataKind() string { return "status_changed" }

// RejectionMetadata accompanies an assignment rejection notification
type RejectionMetadata struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

func (RejectionMetadata) MetadataKind() string { return "rejection" }

// ArbitrationMetadata accompanies a rejection-dispute outcome notification
type ArbitrationMetadata struct {
	ArbitratedBy string `json:"arbitrated_by"`
	Note         string `json:"note,omitempty"`
}

func (ArbitrationMetadata) MetadataKind() string { return "arbitration" }

// ApprovalMetadata accompanies approval gate notifications
type ApprovalMetadata struct {
	RequestedBy string `json:"requested_by,omitempty"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (ApprovalMetadata) MetadataKind() string { return "approval" }

// PoolMetadata accompanies pool broadcast and claim notifications
type PoolMetadata struct {
	AddedBy  string `json:"added_by,omitempty"`
	Claimant string `json:"claimant,omitempty"`
}

func (PoolMetadata) MetadataKind() string { return "pool" }

// ClaimResolvedMetadata accompanies claim approval/rejection/drop notifications
type ClaimResolvedMetadata struct {
	ResolvedBy string `json:"resolved_by"`
	Claimant   string `json:"claimant"`
	KeptInPool bool   `json:"kept_in_pool,omitempty"`
}

func (ClaimResolvedMetadata) MetadataKind() string { return "claim_resolved" }

// envelope wraps metadata with its kind tag for storage
type envelope struct {
	Kind string   `json:"kind"`
	Data Metadata `json:"data"`
}

// EncodeMetadata serializes metadata with its kind tag for feed storage.
// A nil metadata encodes to the empty string.
func EncodeMetadata(m Metadata) string {
	if m == nil {
		return ""
	}
	b, err := json.Marshal(envelope{Kind: m.MetadataKind(), Data: m})
	if err != nil {
		return ""
	}
	return string(b)
}
