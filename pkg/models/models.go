// Package models defines the normalized domain types shared across the
// ingestion pipeline: cities, meetings, agenda items, legislative matters,
// committees, council members and queue jobs.
package models

import "time"

// City is a municipality tracked by the pipeline.
type City struct {
	Banana               string // stable slug identifier, e.g. "paloaltoCA"
	Name                 string
	State                string
	County               string
	Vendor               string
	VendorSlug           string
	VendorConfig         map[string]any
	Population           int
	Active               bool
	ZipCodes             []ZipCode
	SyncIntervalOverride *time.Duration
	LastSyncedAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ZipCode is one ZIP code in a city's service area; at most one per
// city is flagged Primary.
type ZipCode struct {
	Code    string
	Primary bool
}

// MeetingStatus enumerates the lifecycle states a meeting can be in.
type MeetingStatus string

const (
	MeetingStatusScheduled  MeetingStatus = "scheduled"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
	MeetingStatusPostponed  MeetingStatus = "postponed"
	MeetingStatusDeferred   MeetingStatus = "deferred"
	MeetingStatusRescheduled MeetingStatus = "rescheduled"
	MeetingStatusRevised    MeetingStatus = "revised"
	MeetingStatusHeld       MeetingStatus = "held"
)

// ProcessingStatus tracks where a meeting is in the downstream
// summarization handoff. The sync pipeline only ever writes "pending";
// the other values are left to the external summarization processor
// consuming the queue.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingQueued    ProcessingStatus = "queued"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// Meeting is a single scheduled or held public meeting for a City.
type Meeting struct {
	ID                string
	Banana            string
	Title             string
	Date              *time.Time
	AgendaURL         string
	PacketURL         string
	Summary           *string
	Participation     map[string]any
	Status            MeetingStatus
	ProcessingStatus  ProcessingStatus
	ProcessingMethod  *string
	ProcessingTime    *float64
	CommitteeID       *string
	Topics            []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AgendaItem is one numbered item on a meeting's agenda.
type AgendaItem struct {
	ID             string
	MeetingID      string
	ItemID         string
	Title          string
	Sequence       int
	AgendaNumber   string
	ItemType       string
	// MatterID is the derived city_matters.id this item's matter
	// resolves to, nil when the item carries no matter reference.
	MatterID       *string
	MatterFile     string
	MatterType     string
	Sponsors       []string
	Attachments    []AttachmentInfo
	AttachmentHash string
	Summary        *string
	Topics         []string
	QualityScore   *float64
	RatingCount    int
	CreatedAt      time.Time
}

// AttachmentInfo is a single document link discovered on an agenda item.
type AttachmentInfo struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// MatterStatus is the disposition of a legislative matter.
type MatterStatus string

const (
	MatterStatusActive  MatterStatus = "active"
	MatterStatusPassed  MatterStatus = "passed"
	MatterStatusFailed  MatterStatus = "failed"
	MatterStatusWithdrawn MatterStatus = "withdrawn"
	MatterStatusTabled  MatterStatus = "tabled"
)

// Matter is a legislative item (ordinance, resolution, contract, etc.)
// tracked across its lifetime, which may span several meetings.
type Matter struct {
	// ID is the derived, per-city-unique primary key (see
	// syncorch.MatterID): banana plus a stable hash of the matter's
	// identifying fields. It is never the vendor's own id.
	ID                string
	Banana            string
	// MatterID is the vendor-native identifier verbatim, as returned by
	// the source system. Often empty; never used as a lookup key.
	MatterID          string
	MatterFile        string
	MatterType        string
	Title             string
	Sponsors          []string
	CanonicalSummary  *string
	CanonicalTopics   []string
	Attachments       []AttachmentInfo
	Metadata          map[string]any
	FirstSeen         time.Time
	LastSeen          time.Time
	AppearanceCount   int
	Status            MatterStatus
	FinalVoteDate     *time.Time
	QualityScore      *float64
	RatingCount       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MatterAppearance links a Matter to a specific meeting agenda item it
// appeared under, recording the vote outcome if one occurred there.
type MatterAppearance struct {
	MatterID    string
	MeetingID   string
	ItemID      string
	AppearedAt  *time.Time
	Committee   *string
	CommitteeID *string
	Sequence    *int
	VoteOutcome *string
	VoteTally   map[string]any
}

// Committee is a standing or ad-hoc body (council, planning commission,
// etc.) that a meeting or matter appearance may be attributed to.
type Committee struct {
	ID     string
	Banana string
	Name   string
	Slug   string
}

// CouncilMember is an elected or appointed official tracked for a city's
// roster, used to attribute sponsorships and votes.
type CouncilMember struct {
	ID       string
	Banana   string
	Name     string
	Seat     string
	Active   bool
	TermEnd  *time.Time
}

// QueueJobStatus enumerates the lifecycle of a downstream-processing job.
type QueueJobStatus string

const (
	QueueJobPending    QueueJobStatus = "pending"
	QueueJobProcessing QueueJobStatus = "processing"
	QueueJobCompleted  QueueJobStatus = "completed"
	QueueJobFailed     QueueJobStatus = "failed"
	QueueJobDeadLetter QueueJobStatus = "dead_letter"
)

// QueueJob is a unit of work handed off to the external summarization
// processor: "please produce a summary for this meeting".
type QueueJob struct {
	ID          string
	SourceURL   string
	MeetingID   string
	Banana      string
	Status      QueueJobStatus
	Priority    int
	Attempts    int
	MaxAttempts int
	LastError   *string
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	UpdatedAt   time.Time
}
