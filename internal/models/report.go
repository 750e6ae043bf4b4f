package models

import "time"

// Report statuses.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusSuspended  = "suspended"
	StatusRejected   = "rejected"
	StatusResolved   = "resolved"
)

var transitions = map[string][]string{
	StatusPending:    {StatusAssigned, StatusRejected},
	StatusAssigned:   {StatusInProgress, StatusSuspended},
	StatusInProgress: {StatusSuspended, StatusResolved},
	StatusSuspended:  {StatusInProgress},
}

// PublicStatuses are visible to everyone, guests included.
var PublicStatuses = []string{StatusAssigned, StatusInProgress, StatusSuspended, StatusResolved}

// AllStatuses in workflow order.
var AllStatuses = []string{StatusPending, StatusAssigned, StatusInProgress, StatusSuspended, StatusRejected, StatusResolved}

// CanTransition reports whether a report may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsPublicStatus reports whether reports in status are shown publicly.
func IsPublicStatus(status string) bool {
	for _, s := range PublicStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether status is a known report status.
func IsValidStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Report is a geolocated issue submitted by a citizen.
type Report struct {
	ID                   uint    `gorm:"primaryKey"`
	Title                string  `gorm:"size:128;not null"`
	Description          string  `gorm:"type:text;not null"`
	CategoryID           uint    `gorm:"index;not null"`
	Latitude             float64 `gorm:"index:idx_reports_location;not null"`
	Longitude            float64 `gorm:"index:idx_reports_location;not null"`
	Address              string  `gorm:"size:255"`
	Status               string  `gorm:"size:16;index;not null"`
	IsAnonymous          bool    `gorm:"not null;default:false"`
	ReporterID           uint    `gorm:"index;not null"`
	AssignedOfficeID     *uint   `gorm:"index"`
	ExternalMaintainerID *uint   `gorm:"index"`
	RejectionReason      string  `gorm:"size:500"`
	ResolvedAt           *time.Time
	CreatedAt            time.Time `gorm:"index"`
	UpdatedAt            time.Time

	Category           Category `gorm:"constraint:OnDelete:RESTRICT"`
	Reporter           User     `gorm:"constraint:OnDelete:CASCADE"`
	AssignedOffice     *Office  `gorm:"constraint:OnDelete:SET NULL"`
	ExternalMaintainer *User    `gorm:"constraint:OnDelete:SET NULL"`
	Photos             []Photo  `gorm:"constraint:OnDelete:CASCADE"`
}

// Photo attached to a report. Path is relative to the uploads directory.
type Photo struct {
	ID          uint   `gorm:"primaryKey"`
	ReportID    uint   `gorm:"index;not null"`
	FileName    string `gorm:"size:128;not null"`
	Path        string `gorm:"size:255;not null"`
	ContentType string `gorm:"size:64"`
	Size        int64
	CreatedAt   time.Time
}
