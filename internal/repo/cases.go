package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"disruptline/internal/domain"
)

const caseColumns = `id,description,disruption_type,disruption_scope,disruption_identifier,disruption_discovered_at,disruption_source,
structured_context_json,financial_impact_json,status,owner_id,owner_email,voice_transcript,stakeholders_json,coordination_phase,
evidence_json,evidence_ready_at,rca_json,rca_performed_at,rca_performed_by,created_by,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var (
		structured, financial, ownerID, owner, voice, stakeholders, phase sql.NullString
		evidence, readyAt, rca, rcaAt, rcaBy                              sql.NullString
		createdAt, updatedAt                                              string
	)
	err := row.Scan(&c.ID, &c.Description, &c.Disruption.Type, &c.Disruption.Scope, &c.Disruption.Identifier,
		&c.Disruption.DiscoveredAt, &c.Disruption.Source, &structured, &financial, &c.Status, &ownerID, &owner,
		&voice, &stakeholders, &phase, &evidence, &readyAt, &rca, &rcaAt, &rcaBy, &c.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	if ownerID.Valid {
		c.OwnerID = &ownerID.String
	}
	if owner.Valid {
		c.Owner = &owner.String
	}
	c.VoiceTranscript = voice.String
	c.CoordinationPhase = phase.String
	c.RCAPerformedBy = rcaBy.String
	if structured.Valid {
		c.StructuredContext = &domain.StructuredContext{}
		if err := unmarshalNullable(structured, c.StructuredContext); err != nil {
			return c, fmt.Errorf("decode structured context: %w", err)
		}
	}
	if financial.Valid {
		c.FinancialImpact = &domain.FinancialImpact{}
		if err := unmarshalNullable(financial, c.FinancialImpact); err != nil {
			return c, fmt.Errorf("decode financial impact: %w", err)
		}
	}
	if err := unmarshalNullable(stakeholders, &c.Stakeholders); err != nil {
		return c, fmt.Errorf("decode stakeholders: %w", err)
	}
	if evidence.Valid {
		c.Evidence = &domain.EvidenceScore{}
		if err := unmarshalNullable(evidence, c.Evidence); err != nil {
			return c, fmt.Errorf("decode evidence: %w", err)
		}
	}
	if rca.Valid {
		c.RCA = &domain.RCAResult{}
		if err := unmarshalNullable(rca, c.RCA); err != nil {
			return c, fmt.Errorf("decode rca: %w", err)
		}
	}
	if c.EvidenceReadyAt, err = parseNullTS(readyAt); err != nil {
		return c, err
	}
	if c.RCAPerformedAt, err = parseNullTS(rcaAt); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTS(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertCase(ctx context.Context, c domain.Case) error {
	structured, err := marshalNullable(c.StructuredContext)
	if err != nil {
		return err
	}
	financial, err := marshalNullable(c.FinancialImpact)
	if err != nil {
		return err
	}
	stakeholders, err := marshalNullable(c.Stakeholders)
	if err != nil {
		return err
	}
	evidence, err := marshalNullable(c.Evidence)
	if err != nil {
		return err
	}
	rca, err := marshalNullable(c.RCA)
	if err != nil {
		return err
	}
	_, err = r.conn().ExecContext(ctx, `INSERT INTO cases(`+caseColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Description, c.Disruption.Type, c.Disruption.Scope, c.Disruption.Identifier, c.Disruption.DiscoveredAt,
		c.Disruption.Source, structured, financial, c.Status, nullableStringPtr(c.OwnerID), nullableStringPtr(c.Owner),
		nullable(c.VoiceTranscript), stakeholders, nullable(c.CoordinationPhase), evidence, nullableTS(c.EvidenceReadyAt),
		rca, nullableTS(c.RCAPerformedAt), nullable(c.RCAPerformedBy), c.CreatedBy, formatTS(c.CreatedAt), formatTS(c.UpdatedAt))
	return storageErr("insert case", err)
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	c, err := scanCase(r.conn().QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, domain.NotFoundError{Kind: "case", ID: id}
	}
	return c, storageErr("get case", err)
}

type CaseFilters struct {
	Status     string
	OwnerEmail string
	Limit      int
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerEmail != "" {
		clauses = append(clauses, "owner_email=?")
		args = append(args, f.OwnerEmail)
	}
	query := `SELECT ` + caseColumns + ` FROM cases`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list cases", err)
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, storageErr("scan case", err)
		}
		res = append(res, c)
	}
	return res, storageErr("list cases", rows.Err())
}

// CaseUpdate lists the fields to overwrite; nil pointers are left untouched.
type CaseUpdate struct {
	Status            *string
	OwnerID           *string
	Owner             *string
	VoiceTranscript   *string
	Stakeholders      *[]domain.Stakeholder
	CoordinationPhase *string
	Evidence          *domain.EvidenceScore
	// EvidenceReadyAt is only written when the stored value is NULL.
	EvidenceReadyAt *time.Time
	RCA             *domain.RCAResult
	RCAPerformedAt  *time.Time
	RCAPerformedBy  *string
	// UpdatedAt is written when non-zero.
	UpdatedAt time.Time
}

// UpdateCaseFields applies a field-level update to one case.
func (r Repo) UpdateCaseFields(ctx context.Context, id string, u CaseUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Status != nil {
		set("status", *u.Status)
	}
	if u.OwnerID != nil {
		set("owner_id", nullableStringPtr(u.OwnerID))
	}
	if u.Owner != nil {
		set("owner_email", nullableStringPtr(u.Owner))
	}
	if u.VoiceTranscript != nil {
		set("voice_transcript", nullable(*u.VoiceTranscript))
	}
	if u.Stakeholders != nil {
		v, err := marshalNullable(*u.Stakeholders)
		if err != nil {
			return err
		}
		set("stakeholders_json", v)
	}
	if u.CoordinationPhase != nil {
		set("coordination_phase", nullable(*u.CoordinationPhase))
	}
	if u.Evidence != nil {
		v, err := marshalNullable(u.Evidence)
		if err != nil {
			return err
		}
		set("evidence_json", v)
	}
	if u.EvidenceReadyAt != nil {
		fields = append(fields, "evidence_ready_at=COALESCE(evidence_ready_at, ?)")
		args = append(args, formatTS(*u.EvidenceReadyAt))
	}
	if u.RCA != nil {
		v, err := marshalNullable(u.RCA)
		if err != nil {
			return err
		}
		set("rca_json", v)
	}
	if u.RCAPerformedAt != nil {
		set("rca_performed_at", formatTS(*u.RCAPerformedAt))
	}
	if u.RCAPerformedBy != nil {
		set("rca_performed_by", nullable(*u.RCAPerformedBy))
	}
	if !u.UpdatedAt.IsZero() {
		set("updated_at", formatTS(u.UpdatedAt))
	}
	if len(fields) == 0 {
		_, err := r.GetCase(ctx, id)
		return err
	}
	args = append(args, id)
	res, err := r.conn().ExecContext(ctx, fmt.Sprintf(`UPDATE cases SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return storageErr("update case", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError{Kind: "case", ID: id}
	}
	return nil
}
