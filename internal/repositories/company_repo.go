package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

type organizationRow struct {
	Name    string            `db:"name"`
	Aliases models.StringList `db:"aliases"`
	Domains models.StringList `db:"domains"`
}

func (o organizationRow) toModel() models.Organization {
	return models.Organization{Name: o.Name, Aliases: o.Aliases, Domains: o.Domains}
}

type taxonomyRow struct {
	Region           string            `db:"region"`
	IndustryVertical string            `db:"industry_vertical"`
	PersonaTitle     string            `db:"title"`
	JourneyPhases    models.StringList `db:"journey_phases"`
}

type statement struct {
	query string
	args  []interface{}
}

// CompanyRepo reads the company profile and query taxonomy an analysis is built against
type CompanyRepo struct {
	db *sqlx.DB
}

func NewCompanyRepo(db *sqlx.DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

// GetProfile loads the company with its competitors and products in registration order.
func (r *CompanyRepo) GetProfile(ctx context.Context, companyID uuid.UUID) (*models.CompanyProfile, error) {
	var company organizationRow
	query := r.db.Rebind(`SELECT name, aliases, domains FROM companies WHERE company_id = ?`)
	if err := r.db.GetContext(ctx, &company, query, companyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "repositories: get company %s", companyID)
	}

	var competitors []organizationRow
	query = r.db.Rebind(`SELECT name, aliases, domains FROM company_competitors
		WHERE company_id = ? ORDER BY position`)
	if err := r.db.SelectContext(ctx, &competitors, query, companyID); err != nil {
		return nil, eris.Wrapf(err, "repositories: list competitors for %s", companyID)
	}

	var products []string
	query = r.db.Rebind(`SELECT name FROM company_products WHERE company_id = ? ORDER BY position`)
	if err := r.db.SelectContext(ctx, &products, query, companyID); err != nil {
		return nil, eris.Wrapf(err, "repositories: list products for %s", companyID)
	}

	profile := &models.CompanyProfile{
		ID:           companyID,
		Organization: company.toModel(),
		Products:     products,
	}
	for _, c := range competitors {
		profile.Competitors = append(profile.Competitors, c.toModel())
	}
	return profile, nil
}

// SaveProfile replaces a company profile. Used by local seeding.
func (r *CompanyRepo) SaveProfile(ctx context.Context, profile *models.CompanyProfile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "repositories: begin save profile")
	}
	defer tx.Rollback()

	stmts := []statement{
		{`DELETE FROM company_products WHERE company_id = ?`, []interface{}{profile.ID}},
		{`DELETE FROM company_competitors WHERE company_id = ?`, []interface{}{profile.ID}},
		{`DELETE FROM companies WHERE company_id = ?`, []interface{}{profile.ID}},
		{`INSERT INTO companies (company_id, name, aliases, domains) VALUES (?, ?, ?, ?)`,
			[]interface{}{profile.ID, profile.Name, models.StringList(profile.Aliases), models.StringList(profile.Domains)}},
	}
	for i, c := range profile.Competitors {
		stmts = append(stmts, statement{
			`INSERT INTO company_competitors (company_id, position, name, aliases, domains) VALUES (?, ?, ?, ?, ?)`,
			[]interface{}{profile.ID, i + 1, c.Name, models.StringList(c.Aliases), models.StringList(c.Domains)},
		})
	}
	for i, p := range profile.Products {
		stmts = append(stmts, statement{
			`INSERT INTO company_products (company_id, position, name) VALUES (?, ?, ?)`,
			[]interface{}{profile.ID, i + 1, p},
		})
	}

	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(s.query), s.args...); err != nil {
			return eris.Wrapf(err, "repositories: save profile %s", profile.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "repositories: commit save profile")
}

// GetTaxonomy resolves the ICP and persona context of a query.
func (r *CompanyRepo) GetTaxonomy(ctx context.Context, queryID uuid.UUID) (models.TaxonomySnapshot, error) {
	var row taxonomyRow
	query := r.db.Rebind(`SELECT i.region, i.industry_vertical, p.title, q.journey_phases
		FROM queries q
		JOIN personas p ON p.persona_id = q.persona_id
		JOIN icps i ON i.icp_id = p.icp_id
		WHERE q.query_id = ?`)
	if err := r.db.GetContext(ctx, &row, query, queryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TaxonomySnapshot{}, ErrNotFound
		}
		return models.TaxonomySnapshot{}, eris.Wrapf(err, "repositories: get taxonomy for query %s", queryID)
	}
	return models.TaxonomySnapshot{
		GeographicRegion:   row.Region,
		IndustryVertical:   row.IndustryVertical,
		BuyerPersona:       row.PersonaTitle,
		BuyingJourneyStage: strings.Join(row.JourneyPhases, ", "),
	}, nil
}

// SaveTaxonomy stores an ICP with its personas and their queries. Used by local seeding.
func (r *CompanyRepo) SaveTaxonomy(ctx context.Context, icp *models.ICP) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "repositories: begin save taxonomy")
	}
	defer tx.Rollback()

	if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO icps (icp_id, region, industry_vertical, company_size, company_id)
		VALUES (:icp_id, :region, :industry_vertical, :company_size, :company_id)`, icp); err != nil {
		return eris.Wrapf(err, "repositories: insert icp %s", icp.ID)
	}
	for i := range icp.Personas {
		persona := &icp.Personas[i]
		persona.ICPID = icp.ID
		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO personas (persona_id, title, seniority, department, icp_id)
			VALUES (:persona_id, :title, :seniority, :department, :icp_id)`, persona); err != nil {
			return eris.Wrapf(err, "repositories: insert persona %s", persona.ID)
		}
		for j := range persona.Queries {
			q := &persona.Queries[j]
			q.PersonaID = persona.ID
			if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO queries
				(query_id, query_text, journey_phases, persona_id, company_id, batch_id, created_by_batch, created_at)
				VALUES (:query_id, :query_text, :journey_phases, :persona_id, :company_id, :batch_id, :created_by_batch, :created_at)`, q); err != nil {
				return eris.Wrapf(err, "repositories: insert query %s", q.ID)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "repositories: commit save taxonomy")
}
