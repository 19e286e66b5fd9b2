package domain

import "github.com/shopspring/decimal"

const (
	AgreementPCA  = "PCA"
	AgreementMOU  = "MOU"
	AgreementSSFA = "SSFA"
	AgreementGTC  = "GTC"

	DocumentPD   = "PD"
	DocumentSPD  = "SPD"
	DocumentSSFA = "SSFA"
)

// Attachment codes checked by guards.
const (
	AttachmentSignedAgreement        = "signed_agreement"
	AttachmentSignedPD               = "signed_pd_document"
	AttachmentTermination            = "termination_doc"
	AttachmentFinalPartnershipReview = "final_partnership_review"
	AttachmentReport                 = "report"
)

type Attachment struct {
	Code       string `json:"code" validate:"required"`
	File       string `json:"file" validate:"required"`
	UploadedBy string `json:"uploaded_by,omitempty"`
	UploadedAt *Date  `json:"uploaded_at,omitempty"`
}

type Amendment struct {
	Number         string   `json:"number" validate:"required"`
	Types          []string `json:"types"`
	SignedDate     *Date    `json:"signed_date"`
	SignedDocument string   `json:"signed_document"`
}

// HasAttachment reports whether at least one attachment carries code.
func HasAttachment(items []Attachment, code string) bool {
	for _, a := range items {
		if a.Code == code && a.File != "" {
			return true
		}
	}
	return false
}

type Agreement struct {
	Base
	Partner              string       `json:"partner" validate:"required"`
	AgreementType        string       `json:"agreement_type" validate:"required,oneof=PCA MOU SSFA GTC" enum:"PCA,MOU,SSFA,GTC"`
	AgreementNumber      string       `json:"agreement_number"`
	CountryProgramme     string       `json:"country_programme"`
	Start                *Date        `json:"start"`
	End                  *Date        `json:"end"`
	SignedByPartnerDate  *Date        `json:"signed_by_partner_date"`
	SignedByUnicefDate   *Date        `json:"signed_by_unicef_date"`
	SignedBy             string       `json:"signed_by"`
	PartnerManager       string       `json:"partner_manager"`
	AuthorizedOfficers   []string     `json:"authorized_officers"`
	Amendments           []Amendment  `json:"amendments" validate:"dive"`
	Attachments          []Attachment `json:"attachments" validate:"dive"`
	TerminationReason    string       `json:"termination_reason"`
}

func (*Agreement) Kind() Kind { return KindAgreement }

type Budget struct {
	Currency            string          `json:"currency" validate:"omitempty,len=3"`
	UnicefCash          decimal.Decimal `json:"unicef_cash"`
	InKindAmount        decimal.Decimal `json:"in_kind_amount"`
	PartnerContribution decimal.Decimal `json:"partner_contribution"`
}

// Total is the UNICEF share: cash plus supplies.
func (b Budget) Total() decimal.Decimal {
	return b.UnicefCash.Add(b.InKindAmount)
}

type FundsReservation struct {
	Number            string          `json:"number" validate:"required"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ActualAmount      decimal.Decimal `json:"actual_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

type ResultLink struct {
	CPOutput      string   `json:"cp_output" validate:"required"`
	RAMIndicators []string `json:"ram_indicators"`
}

type Risk struct {
	RiskType           string `json:"risk_type" validate:"required"`
	MitigationMeasures string `json:"mitigation_measures"`
}

type SupplyItem struct {
	Title      string          `json:"title" validate:"required"`
	UnitNumber decimal.Decimal `json:"unit_number"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type ReportingPeriod struct {
	Start   *Date `json:"start" validate:"required"`
	End     *Date `json:"end" validate:"required"`
	DueDate *Date `json:"due_date" validate:"required"`
}

type Intervention struct {
	Base
	Agreement                         string             `json:"agreement" validate:"required"`
	DocumentType                      string             `json:"document_type" validate:"required,oneof=PD SPD SSFA" enum:"PD,SPD,SSFA"`
	Title                             string             `json:"title" validate:"required"`
	ReferenceNumber                   string             `json:"reference_number"`
	CountryProgramme                  string             `json:"country_programme"`
	Start                             *Date              `json:"start"`
	End                               *Date              `json:"end"`
	SignedByPartnerDate               *Date              `json:"signed_by_partner_date"`
	SignedByUnicefDate                *Date              `json:"signed_by_unicef_date"`
	UnicefSignatory                   string             `json:"unicef_signatory"`
	PartnerAuthorizedOfficerSignatory string             `json:"partner_authorized_officer_signatory"`
	PartnerFocalPoints                []string           `json:"partner_focal_points"`
	UnicefFocalPoints                 []string           `json:"unicef_focal_points"`
	Sections                          []string           `json:"sections"`
	Offices                           []string           `json:"offices"`
	PlannedBudget                     Budget             `json:"planned_budget"`
	FundsReservations                 []FundsReservation `json:"funds_reservations" validate:"dive"`
	Amendments                        []Amendment        `json:"amendments" validate:"dive"`
	InAmendment                       bool               `json:"in_amendment"`
	ResultLinks                       []ResultLink       `json:"result_links" validate:"dive"`
	Risks                             []Risk             `json:"risks" validate:"dive"`
	SupplyItems                       []SupplyItem       `json:"supply_items" validate:"dive"`
	ReportingPeriods                  []ReportingPeriod  `json:"reporting_periods" validate:"dive"`
	CashTransferModalities            []string           `json:"cash_transfer_modalities" validate:"dive,oneof=payment reimbursement direct supply"`
	ContingencyPD                     bool               `json:"contingency_pd"`
	UnicefCourt                       bool               `json:"unicef_court"`
	Attachments                       []Attachment       `json:"attachments" validate:"dive"`
	CancelJustification               string             `json:"cancel_justification"`
	DateSentToPartner                 *Date              `json:"date_sent_to_partner"`
}

func (*Intervention) Kind() Kind { return KindIntervention }
