package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/lib/pq"

	"github.com/liamcoop/stagegate/rules"
)

// relatedQuery counts rows in one related collection for a job.
type relatedQuery struct {
	field string
	sql   string
}

// PostgresFactProvider builds snapshots from the jobs table and its related
// tables. has_related prerequisites declared in the rule table are resolved
// to row counts stored under the prerequisite's field name.
type PostgresFactProvider struct {
	db      *sql.DB
	deriver *rules.Deriver
	related []relatedQuery
}

// NewPostgresFactProvider prepares the related-record queries for table.
// Table and column names were validated as identifiers when the table was
// built and are quoted here.
func NewPostgresFactProvider(db *sql.DB, table *rules.Table, deriver *rules.Deriver) *PostgresFactProvider {
	checks := table.RelatedChecks()

	fields := make([]string, 0, len(checks))
	for field := range checks {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	related := make([]relatedQuery, 0, len(fields))
	for _, field := range fields {
		hr := checks[field]
		related = append(related, relatedQuery{
			field: field,
			sql: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1",
				pq.QuoteIdentifier(hr.Table), pq.QuoteIdentifier(hr.Field)),
		})
	}

	return &PostgresFactProvider{
		db:      db,
		deriver: deriver,
		related: related,
	}
}

// Snapshot reads the job's facts. NULL columns are left out so they read as
// absent rather than as zero values.
func (p *PostgresFactProvider) Snapshot(ctx context.Context, jobID string) (rules.Facts, error) {
	if !isUUID(jobID) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	var (
		contactID       sql.NullString
		partnerID       sql.NullString
		quotedValue     sql.NullFloat64
		quoteStatus     sql.NullString
		depositReceived sql.NullBool
		invoiceStatus   sql.NullString
		quoteItems      int64
		scheduled       int64
		completed       int64
	)

	err := p.db.QueryRowContext(ctx, `
		SELECT j.contact_id, j.partner_id, j.quoted_value, j.quote_status,
		       j.deposit_received, j.invoice_status,
		       (SELECT COUNT(*) FROM quote_items qi WHERE qi.job_id = j.id),
		       (SELECT COUNT(*) FROM job_surveys s WHERE s.job_id = j.id AND s.scheduled_at IS NOT NULL),
		       (SELECT COUNT(*) FROM job_surveys s WHERE s.job_id = j.id AND s.completed_at IS NOT NULL)
		FROM jobs j
		WHERE j.id = $1
	`, jobID).Scan(
		&contactID,
		&partnerID,
		&quotedValue,
		&quoteStatus,
		&depositReceived,
		&invoiceStatus,
		&quoteItems,
		&scheduled,
		&completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job facts: %w", err)
	}

	facts := rules.Facts{
		"quoteItemCount":       quoteItems,
		"scheduledSurveyCount": scheduled,
		"completedSurveyCount": completed,
	}
	if contactID.Valid {
		facts["contactId"] = contactID.String
	}
	if partnerID.Valid {
		facts["partnerId"] = partnerID.String
	}
	if quotedValue.Valid {
		facts["quotedValue"] = quotedValue.Float64
	}
	if quoteStatus.Valid {
		facts["quoteStatus"] = quoteStatus.String
	}
	if depositReceived.Valid {
		facts["depositReceived"] = depositReceived.Bool
	}
	if invoiceStatus.Valid {
		facts["invoiceStatus"] = invoiceStatus.String
	}

	for _, rq := range p.related {
		var count int64
		if err := p.db.QueryRowContext(ctx, rq.sql, jobID).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count related records for %s: %w", rq.field, err)
		}
		facts[rq.field] = count
	}

	return derive(p.deriver, jobID, facts), nil
}
