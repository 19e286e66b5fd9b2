package domain

import "sort"

const (
	MonitorStaff = "staff"
	MonitorTPM   = "tpm"

	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type MonitoringActivity struct {
	Base
	MonitorType        string   `json:"monitor_type" validate:"required,oneof=staff tpm" enum:"staff,tpm"`
	TPMPartner         string   `json:"tpm_partner"`
	Partners           []string `json:"partners"`
	CPOutputs          []string `json:"cp_outputs"`
	Interventions      []string `json:"interventions"`
	Location           string   `json:"location"`
	LocationSite       string   `json:"location_site"`
	Sections           []string `json:"sections"`
	Offices            []string `json:"offices"`
	TeamMembers        []string `json:"team_members"`
	VisitLead          string   `json:"visit_lead"`
	StartDate          *Date    `json:"start_date"`
	EndDate            *Date    `json:"end_date"`
	RejectReason       string   `json:"reject_reason"`
	ReportRejectReason string   `json:"report_reject_reason"`
	CancelReason       string   `json:"cancel_reason"`
}

func (*MonitoringActivity) Kind() Kind { return KindMonitoringActivity }

type Comment struct {
	Author    string `json:"author" validate:"required"`
	Text      string `json:"text" validate:"required"`
	CreatedAt *Date  `json:"created_at"`
}

type ActionPoint struct {
	Base
	Author             string    `json:"author"`
	AssignedBy         string    `json:"assigned_by"`
	AssignedTo         string    `json:"assigned_to" validate:"required"`
	Description        string    `json:"description" validate:"required"`
	DueDate            *Date     `json:"due_date"`
	Priority           string    `json:"priority" validate:"omitempty,oneof=low normal high" enum:"low,normal,high"`
	Category           string    `json:"category"`
	Section            string    `json:"section"`
	Office             string    `json:"office"`
	Partner            string    `json:"partner"`
	Intervention       string    `json:"intervention"`
	Engagement         string    `json:"engagement"`
	MonitoringActivity string    `json:"monitoring_activity"`
	TravelActivity     string    `json:"travel_activity"`
	ActionTaken        string    `json:"action_taken"`
	Comments           []Comment `json:"comments" validate:"dive"`
	DateOfCompletion   *Date     `json:"date_of_completion"`
}

func (*ActionPoint) Kind() Kind { return KindActionPoint }

// Related returns the field names of the linked parent objects that are set.
func (a *ActionPoint) Related() []string {
	var out []string
	for name, v := range map[string]string{
		"intervention":        a.Intervention,
		"engagement":          a.Engagement,
		"monitoring_activity": a.MonitoringActivity,
		"travel_activity":     a.TravelActivity,
	} {
		if v != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
