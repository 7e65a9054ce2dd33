package domain

import "time"

// Case lifecycle statuses. The legal edges live in engine.NextStatus.
const (
	StatusReported         = "REPORTED"
	StatusClarified        = "CLARIFIED"
	StatusDecisionRequired = "DECISION_REQUIRED"
	StatusDecided          = "DECIDED"
	StatusInProgress       = "IN_PROGRESS"
	StatusResolved         = "RESOLVED"
)

// Timeline action tags.
const (
	ActionDisruptionReported   = "DISRUPTION_REPORTED"
	ActionStakeholderContacted = "STAKEHOLDER_CONTACTED"
	ActionStakeholderResponse  = "STAKEHOLDER_RESPONSE"
	ActionContextAdded         = "CONTEXT_ADDED"
	ActionDocumentAdded        = "DOCUMENT_ADDED"
	ActionOwnerAssigned        = "OWNER_ASSIGNED"
	ActionStateTransition      = "STATE_TRANSITION"
	ActionRCAPerformed         = "RCA_PERFORMED"
	ActionEnhancedRCAPerformed = "ENHANCED_RCA_PERFORMED"
	ActionPlanExecuted         = "PLAN_EXECUTED"
	ActionReminderSet          = "REMINDER_SET"
	ActionCaseCreated          = "CASE_CREATED"
)

const (
	SourceText   = "text"
	SourceVoice  = "voice"
	SourceSystem = "system"
)

const (
	ReliabilityLow    = "low"
	ReliabilityMedium = "medium"
	ReliabilityHigh   = "high"
)

// RCA confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Outreach and action outcomes.
const (
	OutreachSent    = "sent"
	OutreachFailed  = "failed"
	OutreachSkipped = "skipped"

	ActionCompleted = "completed"
	ActionFailed    = "failed"
)

// PhaseOutreachSent marks a case whose stakeholders have been contacted.
const PhaseOutreachSent = "outreach_sent"

type DisruptionDetails struct {
	Type         string `json:"disruption_type"`
	Scope        string `json:"scope"`
	Identifier   string `json:"identifier"`
	DiscoveredAt string `json:"time_discovered" required:"false"`
	Source       string `json:"source"`
}

// StructuredContext links a case to master data.
type StructuredContext struct {
	CarrierCode  string `json:"carrier_code,omitempty"`
	LocationCode string `json:"location_code,omitempty"`
	VendorID     string `json:"vendor_id,omitempty"`
	ReasonCode   string `json:"reason_code,omitempty"`
}

type FinancialImpact struct {
	Amount                 float64 `json:"amount"`
	Currency               string  `json:"currency"`
	Category               string  `json:"category" enum:"demurrage,detention,production_loss,penalty"`
	EstimatedDailyIncrease float64 `json:"estimated_daily_increase,omitempty"`
}

type Contact struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	WhatsApp    string `json:"whatsapp,omitempty"`
	SMS         string `json:"sms,omitempty"`
	Email       string `json:"email,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`
}

type Stakeholder struct {
	Role          string  `json:"role"`
	ContactMethod string  `json:"contact_method" enum:"whatsapp,sms,email,phone,api"`
	Priority      string  `json:"priority" enum:"high,medium,low"`
	Required      bool    `json:"required"`
	Contact       Contact `json:"contact"`
}

type EvidenceScore struct {
	Score          int       `json:"score" minimum:"0" maximum:"100"`
	Satisfied      []string  `json:"breakdown"`
	Missing        []string  `json:"missing_actions"`
	LastCalculated time.Time `json:"last_calculated" format:"date-time"`
}

type RecommendedAction struct {
	Action   string `json:"action"`
	Owner    string `json:"owner"`
	Timeline string `json:"timeline"`
	Priority string `json:"priority"`
}

type RCAResult struct {
	RootCause               string              `json:"root_cause"`
	ImmediateBlocker        string              `json:"immediate_blocker,omitempty"`
	ResponsibleParty        string              `json:"responsible_party,omitempty"`
	ContributingFactors     []string            `json:"contributing_factors"`
	RecommendedActions      []RecommendedAction `json:"recommended_actions"`
	EstimatedResolutionTime string              `json:"estimated_resolution_time,omitempty"`
	PreventiveMeasures      []string            `json:"preventive_measures,omitempty"`
	EvidenceSources         []string            `json:"evidence_sources,omitempty"`
	Confidence              string              `json:"confidence" enum:"high,medium,low"`
	SimilarCasesReference   string              `json:"similar_cases_reference,omitempty"`
}

// Case is one tracked disruption. Stakeholders, Evidence and RCA are
// denormalized snapshots derived from the timeline.
type Case struct {
	ID                string             `json:"id"`
	Description       string             `json:"description"`
	Disruption        DisruptionDetails  `json:"disruption_details"`
	StructuredContext *StructuredContext `json:"structured_context,omitempty"`
	FinancialImpact   *FinancialImpact   `json:"financial_impact,omitempty"`
	Status            string             `json:"status" enum:"REPORTED,CLARIFIED,DECISION_REQUIRED,DECIDED,IN_PROGRESS,RESOLVED"`
	OwnerID           *string            `json:"decision_owner_id,omitempty"`
	Owner             *string            `json:"decision_owner_email,omitempty"`
	VoiceTranscript   string             `json:"voice_transcript,omitempty"`
	Stakeholders      []Stakeholder      `json:"stakeholders,omitempty"`
	CoordinationPhase string             `json:"coordination_status,omitempty"`
	Evidence          *EvidenceScore     `json:"evidence_score,omitempty"`
	EvidenceReadyAt   *time.Time         `json:"evidence_ready_at,omitempty" format:"date-time"`
	RCA               *RCAResult         `json:"rca,omitempty"`
	RCAPerformedAt    *time.Time         `json:"rca_performed_at,omitempty" format:"date-time"`
	RCAPerformedBy    string             `json:"rca_performed_by,omitempty"`
	CreatedBy         string             `json:"created_by"`
	CreatedAt         time.Time          `json:"created_at" format:"date-time"`
	UpdatedAt         time.Time          `json:"updated_at" format:"date-time"`
}

// OwnerIdentity returns the owner email or "" when unassigned.
func (c Case) OwnerIdentity() string {
	if c.Owner == nil {
		return ""
	}
	return *c.Owner
}

type TimelineEvent struct {
	ID          string         `json:"id"`
	Seq         int64          `json:"seq"`
	CaseID      string         `json:"case_id"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	Content     string         `json:"content"`
	SourceType  string         `json:"source_type" enum:"text,voice,system"`
	Reliability string         `json:"reliability" enum:"low,medium,high"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp" format:"date-time"`
}

type AuditEntry struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"case_id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp" format:"date-time"`
}

type ActionResult struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	ActionID  string    `json:"action_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status" enum:"completed,failed"`
	Detail    string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp" format:"date-time"`
}

// ActionItem is one entry of an approved action plan.
type ActionItem struct {
	ID            string   `json:"id" required:"false"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Owner         string   `json:"owner,omitempty"`
	Deadline      string   `json:"deadline,omitempty"`
	System        string   `json:"system,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty"`
	ContactMethod string   `json:"contact_method,omitempty"`
	Contact       *Contact `json:"contact,omitempty"`
}

type OutreachResult struct {
	Stakeholder   string    `json:"stakeholder"`
	ContactMethod string    `json:"contact_method"`
	Status        string    `json:"status" enum:"sent,failed,skipped"`
	MessageID     string    `json:"message_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp" format:"date-time"`
}

// Response is a stakeholder reply normalized for root-cause synthesis.
type Response struct {
	EventID     string         `json:"event_id"`
	Stakeholder string         `json:"stakeholder"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp" format:"date-time"`
	Reliability string         `json:"reliability"`
	SourceType  string         `json:"source_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// Document records that supporting evidence was attached; content lives elsewhere.
type Document struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind,omitempty"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}
