package config

const defaultTemplate = `roles:
  unicef_user:
    description: "Any agency staff member"
    side: unicef
    groups: ["UNICEF User"]
  partnership_manager:
    description: "Manages agreements and programme documents"
    side: unicef
    groups: ["Partnership Manager"]
  pme:
    description: "Planning, monitoring and evaluation officer"
    side: unicef
    groups: ["PME"]
  partner_member:
    description: "Staff of an implementing partner"
    side: partner
    groups: ["Partner"]
  audit_focal_point:
    description: "Owns audit and assurance engagements"
    side: unicef
    groups: ["Audit Focal Point"]
  fm_user:
    description: "Plans field monitoring activities"
    side: unicef
    groups: ["Field Monitoring User"]
  admin:
    description: "Administrative override on any status"
    side: none
    groups: ["Admin"]
  authorized_officer:
    side: partner
    instance: true
  partner_signatory:
    side: partner
    instance: true
  unicef_signatory:
    side: unicef
    instance: true
  unicef_focal_point:
    side: unicef
    instance: true
  partner_focal_point:
    side: partner
    instance: true
  auditor:
    side: none
    instance: true
  visit_lead:
    side: none
    instance: true
  team_member:
    side: none
    instance: true
  action_point_author:
    side: none
    instance: true
  action_point_assigner:
    side: none
    instance: true
  action_point_assignee:
    side: none
    instance: true

matrix:
  agreement:
    "*":
      everyone: {}
      admin: &edit_all {"*": {edit: true}}
    draft:
      partnership_manager: *edit_all
      pme: *edit_all
    signed:
      partnership_manager: &agreement_signed
        end: {edit: true}
        authorized_officers: {edit: true}
        amendments: {edit: true}
        attachments: {edit: true}
      pme: *agreement_signed
    suspended:
      partnership_manager: &agreement_suspended
        attachments: {edit: true}
        termination_reason: {edit: true}
      pme: *agreement_suspended

  intervention:
    "*":
      everyone: {}
      admin: *edit_all
    development: &pd_drafting
      partnership_manager: *edit_all
      pme: *edit_all
      unicef_focal_point: *edit_all
      partner_focal_point: *edit_all
    draft: *pd_drafting
    review: *pd_drafting
    signed: &pd_live
      partnership_manager: &pd_live_fields
        end: {edit: true}
        amendments: {edit: true}
        in_amendment: {edit: true}
        attachments: {edit: true}
        funds_reservations: {edit: true}
        reporting_periods: {edit: true}
        unicef_focal_points: {edit: true}
        partner_focal_points: {edit: true}
        unicef_court: {edit: true}
      pme: *pd_live_fields
      unicef_focal_point: *pd_live_fields
      partner_focal_point:
        reporting_periods: {edit: true}
        unicef_court: {edit: true}
    active: *pd_live
    suspended:
      partnership_manager: &pd_attachments_only
        attachments: {edit: true}
      pme: *pd_attachments_only
    ended:
      partnership_manager: &pd_closing
        funds_reservations: {edit: true}
        attachments: {edit: true}
      pme: *pd_closing

  engagement:
    "*":
      everyone: {}
      admin: *edit_all
    partner_contacted:
      audit_focal_point: *edit_all
      auditor:
        "*": {edit: true}
        partner: {edit: false}
        engagement_type: {edit: false}
        staff_members: {edit: false}
    report_submitted:
      audit_focal_point:
        attachments: {edit: true}
        authorized_officers: {edit: true}

  monitoring_activity:
    "*":
      everyone: {}
      admin: *edit_all
    draft: &ma_planning
      fm_user: *edit_all
    checklist: *ma_planning
    review: *ma_planning
    assigned:
      fm_user:
        team_members: {edit: true}
        visit_lead: {edit: true}
        start_date: {edit: true}
        end_date: {edit: true}
    data_collection:
      visit_lead: &ma_field
        location_site: {edit: true}
      team_member: *ma_field
    report_finalization:
      visit_lead:
        location_site: {edit: true}

  action_point:
    "*":
      everyone: {}
      admin: *edit_all
    open:
      action_point_author: *edit_all
      action_point_assigner: *edit_all
      pme: *edit_all
      action_point_assignee:
        comments: {edit: true}
        action_taken: {edit: true}
        due_date: {edit: true}

court:
  intervention:
    field: unicef_court
    exempt_fields: [unicef_court]

states:
  agreement:
    signed:
      required: [partner, agreement_type, start, end]
      rigid: [partner, agreement_type, country_programme, start, signed_by_partner_date, signed_by_unicef_date]
    suspended:
      rigid: [partner, agreement_type, country_programme, start]
    cancelled:
      required: [termination_reason]
  intervention:
    review:
      required: [agreement, document_type, title, start, end]
    signed:
      required: [start, end, signed_by_partner_date, signed_by_unicef_date, unicef_signatory, partner_authorized_officer_signatory]
      rigid: &pd_signed_rigid [agreement, document_type, start, signed_by_partner_date, signed_by_unicef_date, unicef_signatory, partner_authorized_officer_signatory]
    active:
      required: [start, end]
      rigid: *pd_signed_rigid
    closed:
      required: [end]
    cancelled:
      required: [cancel_justification]
  engagement:
    report_submitted:
      required: [date_of_field_visit, date_of_draft_report_to_ip, date_of_comments_by_ip, date_of_draft_report_to_unicef, date_of_comments_by_unicef]
      rigid: [partner, engagement_type]
    cancelled:
      required: [cancel_comment]
  monitoring_activity:
    checklist:
      required: [location, start_date, end_date]
    review:
      required: [location, start_date, end_date]
    assigned:
      required: [visit_lead]
      rigid: [monitor_type, tpm_partner]
    cancelled:
      required: [cancel_reason]

create:
  agreement: [partnership_manager, pme]
  intervention: [partnership_manager, pme]
  engagement: [audit_focal_point]
  monitoring_activity: [fm_user]
  action_point: [unicef_user, partnership_manager, pme, fm_user, audit_focal_point]

delete:
  agreement: [partnership_manager, pme]
  intervention: [partnership_manager, pme]
  engagement: [audit_focal_point]
  monitoring_activity: [fm_user]
  action_point: [action_point_author, pme]

notifications:
  - {kind: agreement, transition: sign, template: agreement.signed, recipients: [authorized_officers, signed_by]}
  - {kind: agreement, transition: terminate, template: agreement.terminated, recipients: [authorized_officers]}
  - {kind: intervention, transition: send_to_partner, template: intervention.sent_to_partner, recipients: [partner_focal_points]}
  - {kind: intervention, transition: submit, template: intervention.submitted, recipients: [unicef_focal_points]}
  - {kind: intervention, transition: sign, template: intervention.signed, recipients: [unicef_focal_points, partner_focal_points]}
  - {kind: intervention, transition: activate, template: intervention.activated, recipients: [unicef_focal_points, partner_focal_points]}
  - {kind: intervention, transition: suspend, template: intervention.suspended, recipients: [unicef_focal_points, partner_focal_points]}
  - {kind: intervention, transition: terminate, template: intervention.terminated, recipients: [unicef_focal_points, partner_focal_points]}
  - {kind: engagement, transition: submit, template: audit.engagement.submitted, recipients: [authorized_officers]}
  - {kind: engagement, transition: send_back, template: audit.engagement.sent_back, recipients: [staff_members]}
  - {kind: engagement, transition: finalize, template: audit.engagement.finalized, recipients: [staff_members, authorized_officers]}
  - {kind: monitoring_activity, transition: assign, template: fm.activity.assigned, recipients: [visit_lead, team_members]}
  - {kind: monitoring_activity, transition: reject, template: fm.activity.rejected, recipients: [actor]}
  - {kind: monitoring_activity, transition: reject_report, template: fm.activity.report_rejected, recipients: [visit_lead]}
  - {kind: monitoring_activity, transition: submit, template: fm.activity.submitted, recipients: [visit_lead]}
  - {kind: action_point, transition: complete, template: action_points.action_point.completed, recipients: [assigned_by]}
  - {kind: action_point, key_event: reassign, template: action_points.action_point.assigned, recipients: [assigned_to]}

policy:
  pca_cutoff: "2015-07-01"
  final_review_threshold: "100000"
  ssfa_agreement_signatures: reject
`
