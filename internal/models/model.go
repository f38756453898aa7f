package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Role      string    `gorm:"type:varchar(20);not null;default:'staff'" json:"role"` // admin|organizer|staff
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Campaign struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Events []Event `gorm:"foreignKey:CampaignID" json:"events,omitempty"`
}

// Universe types gate which QR kinds and bonus rules apply to a persona.
const (
	UniverseGeneral     = "U1"
	UniverseGroupMember = "U2"
	UniverseLeader      = "U3"
	UniverseMilitant    = "U4"
)

type Persona struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Cedula         string    `gorm:"uniqueIndex" json:"cedula"`
	Phone          string    `gorm:"index" json:"phone"`
	UniverseType   string    `gorm:"type:varchar(4);not null;default:'U1'" json:"universe_type"`
	IsLeader       bool      `gorm:"default:false" json:"is_leader"`
	ReferralCode   string    `json:"referral_code"`
	LoyaltyBalance int       `gorm:"not null;default:0" json:"loyalty_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Event struct {
	ID                          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CampaignID                  uuid.UUID  `gorm:"type:uuid;index;not null" json:"campaign_id"`
	Detail                      string     `gorm:"not null" json:"detail"`
	StartsAt                    time.Time  `json:"starts_at"`
	EndedAt                     *time.Time `json:"ended_at"`
	GracePeriodHours            int        `gorm:"not null;default:1" json:"grace_period_hours"`
	AutoCloseScheduled          bool       `gorm:"default:false" json:"auto_close_scheduled"`
	PointsDistributionScheduled bool       `gorm:"default:false" json:"points_distribution_scheduled"`
	PointsDistributed           bool       `gorm:"default:false" json:"points_distributed"`
	BonusPointsForAttendee      int        `gorm:"not null;default:50" json:"bonus_points_for_attendee"`
	BonusPointsForLeader        int        `gorm:"not null;default:10" json:"bonus_points_for_leader"` // per guest
	CreatedAt                   time.Time  `json:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at"`

	// Relations
	Campaign  Campaign        `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
	Attendees []EventAttendee `gorm:"foreignKey:EventID" json:"attendees,omitempty"`
}

// GracePeriodEnd is the instant after which auto-checkout and points
// distribution are allowed to run. Zero value if the event has not ended.
func (e *Event) GracePeriodEnd() time.Time {
	if e.EndedAt == nil {
		return time.Time{}
	}
	hours := e.GracePeriodHours
	if hours <= 0 {
		hours = 1
	}
	return e.EndedAt.Add(time.Duration(hours) * time.Hour)
}

// QR code types. Militant codes are campaign-wide (EventID is null) and bound
// to a persona; leader_guest codes are always bound to the owning leader.
const (
	QrTypeRegistration      = "registration"
	QrTypeEntry             = "entry"
	QrTypeExit              = "exit"
	QrTypeLeaderGuest       = "leader_guest"
	QrTypeMilitantFastTrack = "militant_fasttrack"
)

type QrCode struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CampaignID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"campaign_id"`
	EventID        *uuid.UUID `gorm:"type:uuid;index" json:"event_id"` // null = campaign-wide
	Type           string     `gorm:"type:varchar(30);not null" json:"type"`
	Code           string     `gorm:"uniqueIndex;not null" json:"code"`
	OwnerPersonaID *uuid.UUID `gorm:"type:uuid;index" json:"owner_persona_id"`
	Active         bool       `gorm:"default:true" json:"active"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ScanCount      int        `gorm:"not null;default:0" json:"scan_count"`
	ImagePath      string     `json:"image_path"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relations
	OwnerPersona *Persona `gorm:"foreignKey:OwnerPersonaID" json:"owner_persona,omitempty"`
}

// Attendance lifecycle. Transitions are strictly ordered:
// registered -> entered -> completed.
const (
	AttendanceRegistered = "registered"
	AttendanceEntered    = "entered"
	AttendanceCompleted  = "completed"
)

type EventAttendee struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_event_persona" json:"event_id"`
	PersonaID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_event_persona" json:"persona_id"`
	ReferringLeaderID *uuid.UUID `gorm:"type:uuid;index" json:"referring_leader_id"`
	GroupID           *uuid.UUID `gorm:"type:uuid" json:"group_id"`
	Status            string     `gorm:"type:varchar(20);not null;default:'registered'" json:"status"`
	RegisteredAt      time.Time  `json:"registered_at"`
	EnteredAt         *time.Time `json:"entered_at"`
	ExitedAt          *time.Time `json:"exited_at"`
	DurationMinutes   int        `gorm:"not null;default:0" json:"duration_minutes"`
	SystemClosed      bool       `gorm:"default:false" json:"system_closed"`
	Notes             string     `json:"notes"`
	PointsAwarded     int        `gorm:"not null;default:0" json:"points_awarded"`
	PointsSettled     bool       `gorm:"default:false" json:"points_settled"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relations
	Persona Persona `gorm:"foreignKey:PersonaID" json:"persona,omitempty"`
	Event   Event   `gorm:"foreignKey:EventID" json:"event,omitempty"`
}

// Point-history kinds.
const (
	PointKindAttendance  = "attendance"
	PointKindLeaderBonus = "leader_bonus"
)

// BonusPointHistory is the append-only audit log of awarded points. Rows are
// only ever deleted by a forced recalculation for the same event.
type BonusPointHistory struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PersonaID   uuid.UUID `gorm:"type:uuid;index;not null" json:"persona_id"`
	EventID     uuid.UUID `gorm:"type:uuid;index;not null" json:"event_id"`
	Kind        string    `gorm:"type:varchar(20);not null" json:"kind"`
	Points      int       `gorm:"not null" json:"points"`
	Description string    `json:"description"`
	Metadata    string    `gorm:"type:jsonb;default:null" json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Relations
	Persona Persona `gorm:"foreignKey:PersonaID" json:"persona,omitempty"`
	Event   Event   `gorm:"foreignKey:EventID" json:"event,omitempty"`
}
