package domain

import (
	"fmt"
	"sort"
	"time"
)

type Kind string

const (
	KindAgreement          Kind = "agreement"
	KindIntervention       Kind = "intervention"
	KindEngagement         Kind = "engagement"
	KindMonitoringActivity Kind = "monitoring_activity"
	KindActionPoint        Kind = "action_point"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusSigned     Status = "signed"
	StatusSuspended  Status = "suspended"
	StatusEnded      Status = "ended"
	StatusTerminated Status = "terminated"
	StatusCancelled  Status = "cancelled"

	StatusDevelopment Status = "development"
	StatusReview      Status = "review"
	StatusActive      Status = "active"
	StatusClosed      Status = "closed"

	StatusPartnerContacted Status = "partner_contacted"
	StatusReportSubmitted  Status = "report_submitted"
	StatusFinal            Status = "final"

	StatusChecklist          Status = "checklist"
	StatusAssigned           Status = "assigned"
	StatusDataCollection     Status = "data_collection"
	StatusReportFinalization Status = "report_finalization"
	StatusSubmitted          Status = "submitted"
	StatusCompleted          Status = "completed"

	StatusOpen Status = "open"
)

type kindInfo struct {
	initial  Status
	statuses []Status
	terminal map[Status]bool
	factory  func() Entity
}

var kinds = map[Kind]kindInfo{
	KindAgreement: {
		initial:  StatusDraft,
		statuses: []Status{StatusDraft, StatusSigned, StatusSuspended, StatusEnded, StatusTerminated, StatusCancelled},
		terminal: map[Status]bool{StatusEnded: true, StatusTerminated: true, StatusCancelled: true},
		factory:  func() Entity { return &Agreement{} },
	},
	KindIntervention: {
		initial: StatusDevelopment,
		statuses: []Status{StatusDevelopment, StatusDraft, StatusReview, StatusSigned, StatusActive, StatusEnded,
			StatusClosed, StatusSuspended, StatusTerminated, StatusCancelled},
		terminal: map[Status]bool{StatusClosed: true, StatusTerminated: true, StatusCancelled: true},
		factory:  func() Entity { return &Intervention{} },
	},
	KindEngagement: {
		initial:  StatusPartnerContacted,
		statuses: []Status{StatusPartnerContacted, StatusReportSubmitted, StatusFinal, StatusCancelled},
		terminal: map[Status]bool{StatusFinal: true, StatusCancelled: true},
		factory:  func() Entity { return &Engagement{} },
	},
	KindMonitoringActivity: {
		initial: StatusDraft,
		statuses: []Status{StatusDraft, StatusChecklist, StatusReview, StatusAssigned, StatusDataCollection,
			StatusReportFinalization, StatusSubmitted, StatusCompleted, StatusCancelled},
		terminal: map[Status]bool{StatusCompleted: true, StatusCancelled: true},
		factory:  func() Entity { return &MonitoringActivity{} },
	},
	KindActionPoint: {
		initial:  StatusOpen,
		statuses: []Status{StatusOpen, StatusCompleted},
		terminal: map[Status]bool{StatusCompleted: true},
		factory:  func() Entity { return &ActionPoint{} },
	},
}

// Base carries the system-managed fields shared by every entity.
type Base struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
	UpdatedAt time.Time `json:"updated_at" format:"date-time"`
}

func (b *Base) Meta() *Base { return b }

// Entity is implemented by pointers to the concrete document types.
type Entity interface {
	Kind() Kind
	Meta() *Base
}

// SystemFields are never writable through a patch.
var SystemFields = []string{"id", "status", "version", "created_at", "updated_at"}

func IsSystemField(name string) bool {
	for _, f := range SystemFields {
		if f == name {
			return true
		}
	}
	return false
}

func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", NewError(ErrKindNotFound, fmt.Sprintf("unknown entity kind %q", s))
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) InitialStatus() Status { return kinds[k].initial }

func (k Kind) Statuses() []Status {
	return append([]Status(nil), kinds[k].statuses...)
}

func (k Kind) HasStatus(s Status) bool {
	for _, st := range kinds[k].statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (k Kind) IsTerminal(s Status) bool { return kinds[k].terminal[s] }

// New returns a zero entity of the kind, or nil for an unknown kind.
func New(k Kind) Entity {
	info, ok := kinds[k]
	if !ok {
		return nil
	}
	return info.factory()
}
