package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
)

// Offer types. Discount values are percentages; amount and point values
// are absolute.
const (
	OfferDiscount = "discount"
	OfferAmount   = "amount"
	OfferCoupon   = "coupon"
	OfferPoint    = "point"
	OfferGift     = "gift"
)

var offerTypes = []string{OfferDiscount, OfferAmount, OfferCoupon, OfferPoint, OfferGift}

var offerStatuses = []string{"active", "inactive", "expired"}

// Offer is an incentive attached to campaigns
type Offer struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	OfferType   string     `json:"offer_type"`
	Value       float64    `json:"value"`
	Description string     `json:"description"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OfferInput is the writable part of an Offer
type OfferInput struct {
	Name        string  `json:"name"`
	OfferType   string  `json:"offer_type"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
	ValidFrom   string  `json:"valid_from"`
	ValidTo     string  `json:"valid_to"`
	Status      string  `json:"status"`
}

type preparedOffer struct {
	OfferInput
	from, to *time.Time
}

var offerColumns = []string{"id", "name", "offer_type", "value", "description", "valid_from", "valid_to", "status", "created_at", "updated_at"}

func scanOffer(rows *sql.Rows) (Offer, error) {
	var (
		o        Offer
		from, to sql.NullTime
	)
	if err := rows.Scan(&o.ID, &o.Name, &o.OfferType, &o.Value, &o.Description, &from, &to,
		&o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return o, err
	}
	o.ValidFrom, o.ValidTo = timePtr(from), timePtr(to)
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return o, nil
}

func prepareOffer(in OfferInput) (*preparedOffer, error) {
	p := &preparedOffer{OfferInput: in}
	var err error
	if p.Name, err = required(in.Name, "오퍼 이름"); err != nil {
		return nil, err
	}
	p.OfferType = strings.ToLower(strings.TrimSpace(in.OfferType))
	if err := oneOf(p.OfferType, offerTypes, "오퍼 유형"); err != nil {
		return nil, err
	}
	if in.Value < 0 {
		return nil, domain.NewValidationError("오퍼 값은 0 이상이어야 합니다.")
	}
	if p.OfferType == OfferDiscount && in.Value > 100 {
		return nil, domain.NewValidationError("할인율은 100%를 넘을 수 없습니다.")
	}
	p.Status = strings.TrimSpace(in.Status)
	if p.Status == "" {
		p.Status = "active"
	}
	if err := oneOf(p.Status, offerStatuses, "오퍼 상태"); err != nil {
		return nil, err
	}
	if p.from, err = parseDay(in.ValidFrom, "유효 시작일"); err != nil {
		return nil, err
	}
	if p.to, err = parseDay(in.ValidTo, "유효 종료일"); err != nil {
		return nil, err
	}
	if p.from != nil && p.to != nil && p.to.Before(*p.from) {
		return nil, domain.NewValidationError("유효 종료일은 시작일보다 빠를 수 없습니다.")
	}
	return p, nil
}

// ListOffers returns a page of offers, newest first
func (s *Service) ListOffers(ctx context.Context, f ListFilter) ([]Offer, int, error) {
	return page(ctx, s, f, offersTable,
		func(sel *entsql.Selector, t *entsql.SelectTable) {
			if f.Status != "" {
				sel.Where(entsql.EQ(t.C("status"), f.Status))
			}
			if f.Type != "" {
				sel.Where(entsql.EQ(t.C("offer_type"), f.Type))
			}
			searchFold(sel, f.Search, t.C("name"), t.C("description"))
		},
		func(t *entsql.SelectTable) *entsql.Selector {
			return s.db.Builder().Select(qualify(t, offerColumns)...).From(t)
		},
		func(t *entsql.SelectTable) []string { return []string{entsql.Desc(t.C("created_at")), entsql.Desc(t.C("id"))} },
		scanOffer,
	)
}

// GetOffer returns one offer
func (s *Service) GetOffer(ctx context.Context, id int) (*Offer, error) {
	b := s.db.Builder()
	t := b.Table(offersTable)
	return one(ctx, s, b.Select(qualify(t, offerColumns)...).From(t).Where(entsql.EQ(t.C("id"), id)), scanOffer, "오퍼", id)
}

// CreateOffer stores a new offer
func (s *Service) CreateOffer(ctx context.Context, in OfferInput) (*Offer, error) {
	p, err := prepareOffer(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(offersTable).
		Columns("name", "offer_type", "value", "description", "valid_from", "valid_to", "status", "created_at", "updated_at").
		Values(p.Name, p.OfferType, p.Value, p.Description, nullTime(p.from), nullTime(p.to), p.Status, now, now))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to insert offer: %w", err))
	}
	s.log.Info("offer created", "offer_id", id)
	return s.GetOffer(ctx, id)
}

// UpdateOffer replaces an offer's fields
func (s *Service) UpdateOffer(ctx context.Context, id int, in OfferInput) (*Offer, error) {
	p, err := prepareOffer(in)
	if err != nil {
		return nil, err
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, offersTable, id, "오퍼"); err != nil {
			return err
		}
		_, err := database.Exec(ctx, tx, s.db.Builder().Update(offersTable).
			Set("name", p.Name).
			Set("offer_type", p.OfferType).
			Set("value", p.Value).
			Set("description", p.Description).
			Set("valid_from", nullTime(p.from)).
			Set("valid_to", nullTime(p.to)).
			Set("status", p.Status).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to update offer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	return s.GetOffer(ctx, id)
}

// DeleteOffer removes an offer no active campaign uses
func (s *Service) DeleteOffer(ctx context.Context, id int) error {
	if err := s.deleteReferenced(ctx, offersTable, id, "오퍼"); err != nil {
		return err
	}
	s.log.Info("offer deleted", "offer_id", id)
	return nil
}
