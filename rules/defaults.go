package rules

// Pipeline stages for trade-services jobs, in forward order.
const (
	StageNewEnquiry     Stage = "new_enquiry"
	StageContacted      Stage = "contacted"
	StageSurveyBooked   Stage = "survey_booked"
	StageSurveyComplete Stage = "survey_complete"
	StageQuoting        Stage = "quoting"
	StageQuoteSent      Stage = "quote_sent"
	StageQuoteAccepted  Stage = "quote_accepted"
	StageDepositPaid    Stage = "deposit_paid"
	StageScheduled      Stage = "scheduled"
	StageInProgress     Stage = "in_progress"
	StageCompleted      Stage = "completed"
	StageInvoiced       Stage = "invoiced"
	StagePaid           Stage = "paid"
	StageFollowUp       Stage = "follow_up"
	StageClosed         Stage = "closed"
	StageLost           Stage = "lost"
)

// DefaultStageRules returns the standard trades pipeline. Do not reorder:
// the position of each stage defines which moves count as forward.
func DefaultStageRules() []StageRule {
	return []StageRule{
		{Stage: StageNewEnquiry, Label: "New Enquiry"},
		{
			Stage: StageContacted,
			Label: "Contacted",
			Prerequisites: []Prerequisite{
				{Field: "contactId", Check: Exists{}, Message: "Link a contact to the job before marking it as contacted"},
			},
		},
		{
			Stage: StageSurveyBooked,
			Label: "Survey Booked",
			Prerequisites: []Prerequisite{
				{Field: "hasSurveyScheduled", Check: Equals{Value: true}, Message: "Schedule a survey before moving to Survey Booked"},
			},
		},
		{
			Stage: StageSurveyComplete,
			Label: "Survey Complete",
			Prerequisites: []Prerequisite{
				{Field: "surveyCompleted", Check: Truthy{}, Message: "Mark the survey as completed first"},
			},
		},
		{Stage: StageQuoting, Label: "Quoting"},
		{
			Stage: StageQuoteSent,
			Label: "Quote Sent",
			Prerequisites: []Prerequisite{
				{Field: "hasQuoteItems", Check: Truthy{}, Message: "Add at least one line item to the quote"},
				{Field: "quotedValue", Check: Truthy{}, Message: "The quote must have a value greater than zero"},
			},
		},
		{
			Stage: StageQuoteAccepted,
			Label: "Quote Accepted",
			Prerequisites: []Prerequisite{
				{Field: "quoteStatus", Check: Equals{Value: "accepted"}, Message: "The customer has not accepted the quote yet"},
			},
		},
		{
			Stage:   StageDepositPaid,
			Label:   "Deposit Paid",
			CanSkip: true,
			Prerequisites: []Prerequisite{
				{Field: "depositReceived", Check: Truthy{}, Message: "No deposit has been recorded for this job"},
			},
		},
		{
			Stage: StageScheduled,
			Label: "Scheduled",
			Prerequisites: []Prerequisite{
				{Field: "hasScheduledVisit", Check: HasRelated{Table: "job_visits", Field: "job_id"}, Message: "Book at least one site visit before scheduling the job"},
			},
		},
		{
			Stage: StageInProgress,
			Label: "In Progress",
			Prerequisites: []Prerequisite{
				{Field: "partnerId", Check: Exists{}, Message: "Assign a partner before work starts"},
			},
		},
		{
			Stage: StageCompleted,
			Label: "Completed",
			Prerequisites: []Prerequisite{
				{Field: "hasCompletionPhotos", Check: HasRelated{Table: "job_photos", Field: "job_id"}, Message: "Upload at least one completion photo"},
			},
		},
		{
			Stage: StageInvoiced,
			Label: "Invoiced",
			Prerequisites: []Prerequisite{
				{Field: "hasInvoice", Check: HasRelated{Table: "invoices", Field: "job_id"}, Message: "Raise an invoice for this job"},
			},
		},
		{
			Stage: StagePaid,
			Label: "Paid",
			Prerequisites: []Prerequisite{
				{Field: "invoiceStatus", Check: Equals{Value: "paid"}, Message: "The invoice has not been paid in full"},
			},
		},
		{Stage: StageFollowUp, Label: "Follow Up"},
		{Stage: StageClosed, Label: "Closed"},
		{Stage: StageLost, Label: "Lost"},
	}
}

// DefaultUnrestricted lists the stages a job can always be moved to.
func DefaultUnrestricted() []Stage {
	return []Stage{StageFollowUp, StageClosed, StageLost}
}

// DefaultTable builds the standard trades pipeline table.
func DefaultTable() *Table {
	return MustNewTable(DefaultStageRules(), DefaultUnrestricted())
}
