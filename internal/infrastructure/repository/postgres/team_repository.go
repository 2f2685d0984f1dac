package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pricelab/cfb-market/internal/domain/team"
	qb "github.com/pricelab/cfb-market/internal/platform/querybuilder"
)

type TeamRepository struct {
	db *sqlx.DB
}

func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) ListAll(ctx context.Context) ([]team.Team, error) {
	query, args, err := qb.Select("*").From("teams").
		OrderBy("school").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select teams query: %w", err)
	}

	var rows []teamTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select teams: %w", err)
	}

	out := make([]team.Team, 0, len(rows))
	for _, row := range rows {
		out = append(out, teamFromRow(row))
	}
	return out, nil
}

func (r *TeamRepository) GetByID(ctx context.Context, id string) (team.Team, bool, error) {
	query, args, err := qb.Select("*").From("teams").
		Where(qb.Eq("id", id)).
		ToSQL()
	if err != nil {
		return team.Team{}, false, fmt.Errorf("build select team query: %w", err)
	}

	var row teamTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return team.Team{}, false, nil
		}
		return team.Team{}, false, fmt.Errorf("select team id=%s: %w", id, err)
	}
	return teamFromRow(row), true, nil
}

// GetByProviderName resolves a raw provider school name against the stored
// normalized key.
func (r *TeamRepository) GetByProviderName(ctx context.Context, name string) (team.Team, bool, error) {
	query, args, err := qb.Select("*").From("teams").
		Where(qb.Eq("school_key", team.NormalizeName(name))).
		ToSQL()
	if err != nil {
		return team.Team{}, false, fmt.Errorf("build select team by name query: %w", err)
	}

	var row teamTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return team.Team{}, false, nil
		}
		return team.Team{}, false, fmt.Errorf("select team name=%s: %w", name, err)
	}
	return teamFromRow(row), true, nil
}

func (r *TeamRepository) UpsertTeams(ctx context.Context, items []team.Team) error {
	for _, item := range items {
		model := teamInsertModel{
			ID:                  item.ID,
			School:              item.School,
			SchoolKey:           team.NormalizeName(item.School),
			Conference:          item.Conference,
			Classification:      item.Classification,
			Talent:              ptrToNullFloat(item.Talent),
			ReturningProduction: ptrToNullFloat(item.ReturningProduction),
		}
		query, args, err := qb.InsertModel("teams", model, `ON CONFLICT (id) DO UPDATE SET
			school = EXCLUDED.school,
			school_key = EXCLUDED.school_key,
			conference = EXCLUDED.conference,
			classification = EXCLUDED.classification,
			talent = EXCLUDED.talent,
			returning_production = EXCLUDED.returning_production,
			updated_at = now()`)
		if err != nil {
			return fmt.Errorf("build upsert team query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert team id=%s: %w", item.ID, err)
		}
	}
	return nil
}

func teamFromRow(row teamTableModel) team.Team {
	return team.Team{
		ID:                  row.ID,
		School:              row.School,
		Conference:          row.Conference,
		Classification:      row.Classification,
		Talent:              nullFloatToPtr(row.Talent),
		ReturningProduction: nullFloatToPtr(row.ReturningProduction),
	}
}
