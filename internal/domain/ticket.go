package domain

import "time"

// TicketStatus enumerates lifecycle states for VOC tickets.
type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "OPEN"
	TicketStatusAnalyzing      TicketStatus = "ANALYZING"
	TicketStatusWaitingConfirm TicketStatus = "WAITING_CONFIRM"
	TicketStatusManualRequired TicketStatus = "MANUAL_REQUIRED"
	TicketStatusDone           TicketStatus = "DONE"
	TicketStatusRejected       TicketStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is defined from s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusDone || s == TicketStatusRejected
}

// Valid reports whether s is a declared status value.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAnalyzing, TicketStatusWaitingConfirm,
		TicketStatusManualRequired, TicketStatusDone, TicketStatusRejected:
		return true
	}
	return false
}

// Channel enumerates VOC intake channels.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSlack
}

// Urgency enumerates analysis urgency levels.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// ActionType enumerates proposed resolution actions produced by the engine.
type ActionType string

const (
	ActionIntegrationInquiry ActionType = "integration_inquiry"
	ActionCodeFix            ActionType = "code_fix"
	ActionBusinessProposal   ActionType = "business_proposal"
)

// ConfidenceBreakdown decomposes the engine's overall confidence score.
type ConfidenceBreakdown struct {
	ErrorPatternClarity    float64 `json:"error_pattern_clarity"`
	LogCorrelation         float64 `json:"log_correlation"`
	SimilarCaseMatch       float64 `json:"similar_case_match"`
	SystemInfoAvailability float64 `json:"system_info_availability"`
}

// DecisionReason captures structured root-cause reasoning behind a decision.
type DecisionReason struct {
	RootCause    string              `json:"root_cause"`
	Evidence     []string            `json:"evidence"`
	RuledOut     []string            `json:"ruled_out,omitempty"`
	Breakdown    ConfidenceBreakdown `json:"confidence_breakdown"`
	SimilarCases []string            `json:"similar_cases,omitempty"`
}

// ActionProposal describes the action the engine suggests for resolution.
type ActionProposal struct {
	Type        ActionType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	// Target fields, populated per action type.
	TargetSystem string `json:"target_system,omitempty"`
	ContactInfo  string `json:"contact_info,omitempty"`
	CodeLocation string `json:"code_location,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// Analysis holds the engine's decision for one analysis attempt. The whole
// block is cleared when an admin retries.
type Analysis struct {
	Summary        string          `json:"summary"`
	Urgency        Urgency         `json:"urgency"`
	AffectedSystem string          `json:"affected_system"`
	Confidence     float64         `json:"confidence"`
	Reason         DecisionReason  `json:"decision_reason"`
	Proposal       *ActionProposal `json:"action_proposal,omitempty"`
	AnalyzedAt     time.Time       `json:"analyzed_at"`
}

// Ticket is the aggregate tracking one VOC item through triage.
//
// Version increases by exactly 1 on every accepted write and is the basis
// for optimistic concurrency: no two committed writes share a
// (TicketID, Version) pair.
type Ticket struct {
	TicketID string
	Status   TicketStatus
	Version  int64

	// Intake fields, immutable after creation.
	RawText      string
	CustomerName string
	Channel      Channel
	ReceivedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Analysis result, nil until the engine returns a decision.
	Analysis *Analysis

	// Admin action fields. At most one of ConfirmedAt, RejectReason,
	// ManualResolution is ever set, matching the terminal path taken.
	Assignee         *string
	ConfirmedAt      *time.Time
	RejectReason     *string
	ManualResolution *string
}

// Clone returns a deep copy so stores can hand out records without aliasing.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Analysis != nil {
		a := *t.Analysis
		if t.Analysis.Proposal != nil {
			p := *t.Analysis.Proposal
			a.Proposal = &p
		}
		a.Reason.Evidence = append([]string(nil), t.Analysis.Reason.Evidence...)
		a.Reason.RuledOut = append([]string(nil), t.Analysis.Reason.RuledOut...)
		a.Reason.SimilarCases = append([]string(nil), t.Analysis.Reason.SimilarCases...)
		cp.Analysis = &a
	}
	cp.Assignee = cloneString(t.Assignee)
	cp.RejectReason = cloneString(t.RejectReason)
	cp.ManualResolution = cloneString(t.ManualResolution)
	if t.ConfirmedAt != nil {
		ts := *t.ConfirmedAt
		cp.ConfirmedAt = &ts
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
