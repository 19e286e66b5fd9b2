package domain

import "github.com/shopspring/decimal"

const (
	EngagementAudit           = "audit"
	EngagementSpotCheck       = "sc"
	EngagementMicroAssessment = "ma"
	EngagementSpecialAudit    = "sa"
)

type SpecificProcedure struct {
	Description string `json:"description" validate:"required"`
	Finding     string `json:"finding"`
}

type Engagement struct {
	Base
	EngagementType            string              `json:"engagement_type" validate:"required,oneof=audit sc ma sa" enum:"audit,sc,ma,sa"`
	Partner                   string              `json:"partner" validate:"required"`
	Agreement                 string              `json:"agreement"`
	StartDate                 *Date               `json:"start_date"`
	EndDate                   *Date               `json:"end_date"`
	TotalValue                decimal.Decimal     `json:"total_value"`
	StaffMembers              []string            `json:"staff_members"`
	AuthorizedOfficers        []string            `json:"authorized_officers"`
	ActivePD                  []string            `json:"active_pd"`
	PartnerContactedAt        *Date               `json:"partner_contacted_at"`
	DateOfFieldVisit          *Date               `json:"date_of_field_visit"`
	DateOfDraftReportToIP     *Date               `json:"date_of_draft_report_to_ip"`
	DateOfCommentsByIP        *Date               `json:"date_of_comments_by_ip"`
	DateOfDraftReportToUnicef *Date               `json:"date_of_draft_report_to_unicef"`
	DateOfCommentsByUnicef    *Date               `json:"date_of_comments_by_unicef"`
	DateOfReportSubmit        *Date               `json:"date_of_report_submit"`
	DateOfFinalReport         *Date               `json:"date_of_final_report"`
	DateOfCancel              *Date               `json:"date_of_cancel"`
	CancelComment             string              `json:"cancel_comment"`
	SendBackComment           string              `json:"send_back_comment"`
	AuditedExpenditure        *decimal.Decimal    `json:"audited_expenditure"`
	FinancialFindings         *decimal.Decimal    `json:"financial_findings"`
	AuditOpinion              string              `json:"audit_opinion" validate:"omitempty,oneof=unqualified qualified adverse denial"`
	SpecificProcedures        []SpecificProcedure `json:"specific_procedures" validate:"dive"`
	Attachments               []Attachment        `json:"attachments" validate:"dive"`
}

func (*Engagement) Kind() Kind { return KindEngagement }
