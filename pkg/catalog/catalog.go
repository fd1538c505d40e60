// Package catalog manages the entities campaigns are assembled from:
// customer groups, offers, message scripts, sending channels and notices.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/secrets"
)

const (
	groupsTable   = "customer_groups"
	offersTable   = "offers"
	scriptsTable  = "scripts"
	channelsTable = "channels"
	noticesTable  = "notices"
)

// ListFilter narrows a catalog listing. Status and Type apply where the
// entity has such a column.
type ListFilter struct {
	Page   int
	Limit  int
	Search string
	Status string
	Type   string
}

// Service manages every catalog entity
type Service struct {
	db        *database.Client
	campaigns *campaign.Service
	cipher    *secrets.Cipher
	validate  *validator.Validate
	log       logger.Logger
	now       func() time.Time
}

// NewService creates a catalog service. cipher may be nil, in which case
// channel credentials cannot be stored.
func NewService(db *database.Client, campaigns *campaign.Service, cipher *secrets.Cipher, log logger.Logger) *Service {
	return &Service{
		db:        db,
		campaigns: campaigns,
		cipher:    cipher,
		validate:  validator.New(),
		log:       log.With("component", "catalog"),
		now:       time.Now,
	}
}

// deleteReferenced deletes row id of refTable unless a campaign that is
// still in play links to it. Links from finished campaigns are dropped
// together with the row.
func (s *Service) deleteReferenced(ctx context.Context, refTable string, id int, what string) error {
	return domain.Wrap(s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, refTable, id, what); err != nil {
			return err
		}

		refs, err := s.campaigns.ActiveReferences(ctx, tx, refTable, id)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			linked := make([]map[string]any, len(refs))
			for i, r := range refs {
				linked[i] = map[string]any{"id": r.ID, "name": r.Name, "status": r.Status}
			}
			return domain.NewConflictError(
				fmt.Sprintf("진행 중인 캠페인 %d개에서 사용 중인 %s은(는) 삭제할 수 없습니다.", len(refs), what),
			).WithDetails(map[string]any{"campaigns": linked})
		}

		if err := s.campaigns.Unlink(ctx, tx, refTable, id); err != nil {
			return err
		}
		return s.deleteRow(ctx, tx, refTable, id)
	}))
}

func (s *Service) deleteRow(ctx context.Context, q database.Querier, tbl string, id int) error {
	if _, err := database.Exec(ctx, q, s.db.Builder().Delete(tbl).Where(entsql.EQ("id", id))); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", tbl, err)
	}
	return nil
}

func (s *Service) exists(ctx context.Context, q database.Querier, tbl string, id int, what string) error {
	b := s.db.Builder()
	n, err := database.Count(ctx, q, b.Select(entsql.Count("*")).From(b.Table(tbl)).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", tbl, err)
	}
	if n == 0 {
		return notFound(what, id)
	}
	return nil
}

// page runs a count and a page query built from the same filter
func page[T any](ctx context.Context, s *Service, f ListFilter, tbl string,
	filter func(sel *entsql.Selector, t *entsql.SelectTable),
	columns func(t *entsql.SelectTable) *entsql.Selector,
	order func(t *entsql.SelectTable) []string,
	scan func(rows *sql.Rows) (T, error),
) ([]T, int, error) {
	b := s.db.Builder()
	p := listing.NewPage(f.Page, f.Limit)

	ct := b.Table(tbl).As("t")
	countSel := b.Select(entsql.Count("*")).From(ct)
	filter(countSel, ct)
	total, err := database.Count(ctx, s.db.DB, countSel)
	if err != nil {
		return nil, 0, domain.Wrap(fmt.Errorf("failed to count %s: %w", tbl, err))
	}

	t := b.Table(tbl).As("t")
	sel := columns(t)
	filter(sel, t)
	sel.OrderBy(order(t)...).Limit(p.Limit).Offset(p.Offset())

	list, err := collect(ctx, s.db.DB, sel, scan)
	if err != nil {
		return nil, 0, domain.Wrap(fmt.Errorf("failed to list %s: %w", tbl, err))
	}
	return list, total, nil
}

func collect[T any](ctx context.Context, q database.Querier, sel *entsql.Selector, scan func(rows *sql.Rows) (T, error)) ([]T, error) {
	rows, err := database.Query(ctx, q, sel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// one returns the single row sel selects, or a not found error
func one[T any](ctx context.Context, s *Service, sel *entsql.Selector, scan func(rows *sql.Rows) (T, error), what string, id int) (*T, error) {
	list, err := collect(ctx, s.db.DB, sel, scan)
	if err != nil {
		return nil, domain.Wrap(err)
	}
	if len(list) == 0 {
		return nil, notFound(what, id)
	}
	return &list[0], nil
}

func searchFold(sel *entsql.Selector, term string, cols ...string) {
	term = listing.SearchTerm(term)
	if term == "" {
		return
	}
	preds := make([]*entsql.Predicate, len(cols))
	for i, c := range cols {
		preds[i] = entsql.ContainsFold(c, term)
	}
	sel.Where(entsql.Or(preds...))
}

func notFound(what string, id int) *domain.DomainError {
	return domain.NewNotFoundError(fmt.Sprintf("%s을(를) 찾을 수 없습니다.", what)).WithDetails(map[string]any{"id": id})
}

func required(v, what string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.NewValidationError(fmt.Sprintf("%s은(는) 필수입니다.", what))
	}
	return v, nil
}

func oneOf(v string, allowed []string, what string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return domain.NewValidationError(fmt.Sprintf("유효하지 않은 %s입니다.", what)).
		WithDetails(map[string]any{"allowed": allowed})
}

func nullInt(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id > 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// parseDay accepts YYYY-MM-DD or RFC 3339; empty means unset
func parseDay(v, what string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.NewValidationError(fmt.Sprintf("%s 형식이 올바르지 않습니다.", what))
}
