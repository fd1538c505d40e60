package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
)

// Notice is an announcement shown to back-office users
type Notice struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsPinned   bool      `json:"is_pinned"`
	AuthorID   *int      `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NoticeInput is the writable part of a Notice
type NoticeInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPinned bool   `json:"is_pinned"`
}

func (s *Service) noticeSelect(t *entsql.SelectTable) *entsql.Selector {
	b := s.db.Builder()
	u := b.Table("users").As("u")
	return b.Select(t.C("id"), t.C("title"), t.C("content"), t.C("is_pinned"), t.C("author_id"),
		u.C("name"), t.C("created_at"), t.C("updated_at")).
		From(t).
		LeftJoin(u).On(t.C("author_id"), u.C("id"))
}

func scanNotice(rows *sql.Rows) (Notice, error) {
	var (
		n      Notice
		author sql.NullInt64
		name   sql.NullString
	)
	if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.IsPinned, &author, &name, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return n, err
	}
	if author.Valid {
		v := int(author.Int64)
		n.AuthorID = &v
	}
	n.AuthorName = name.String
	n.CreatedAt, n.UpdatedAt = n.CreatedAt.UTC(), n.UpdatedAt.UTC()
	return n, nil
}

func prepareNotice(in NoticeInput) (NoticeInput, error) {
	var err error
	if in.Title, err = required(in.Title, "공지 제목"); err != nil {
		return in, err
	}
	if in.Content, err = required(in.Content, "공지 내용"); err != nil {
		return in, err
	}
	return in, nil
}

// ListNotices returns a page of notices, pinned first then newest
func (s *Service) ListNotices(ctx context.Context, f ListFilter) ([]Notice, int, error) {
	return page(ctx, s, f, noticesTable,
		func(sel *entsql.Selector, t *entsql.SelectTable) {
			searchFold(sel, f.Search, t.C("title"), t.C("content"))
		},
		s.noticeSelect,
		func(t *entsql.SelectTable) []string {
			return []string{entsql.Desc(t.C("is_pinned")), entsql.Desc(t.C("created_at")), entsql.Desc(t.C("id"))}
		},
		scanNotice,
	)
}

// GetNotice returns one notice with its author name
func (s *Service) GetNotice(ctx context.Context, id int) (*Notice, error) {
	t := s.db.Builder().Table(noticesTable).As("t")
	return one(ctx, s, s.noticeSelect(t).Where(entsql.EQ(t.C("id"), id)), scanNotice, "공지사항", id)
}

// CreateNotice stores a notice written by authorID
func (s *Service) CreateNotice(ctx context.Context, authorID int, in NoticeInput) (*Notice, error) {
	in, err := prepareNotice(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(noticesTable).
		Columns("title", "content", "is_pinned", "author_id", "created_at", "updated_at").
		Values(in.Title, in.Content, in.IsPinned, nullInt(authorID), now, now))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to insert notice: %w", err))
	}
	s.log.Info("notice created", "notice_id", id, "author_id", authorID)
	return s.GetNotice(ctx, id)
}

// UpdateNotice replaces a notice's fields. The author is kept.
func (s *Service) UpdateNotice(ctx context.Context, id int, in NoticeInput) (*Notice, error) {
	in, err := prepareNotice(in)
	if err != nil {
		return nil, err
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, noticesTable, id, "공지사항"); err != nil {
			return err
		}
		_, err := database.Exec(ctx, tx, s.db.Builder().Update(noticesTable).
			Set("title", in.Title).
			Set("content", in.Content).
			Set("is_pinned", in.IsPinned).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to update notice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	return s.GetNotice(ctx, id)
}

// DeleteNotice removes a notice
func (s *Service) DeleteNotice(ctx context.Context, id int) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, noticesTable, id, "공지사항"); err != nil {
			return err
		}
		return s.deleteRow(ctx, tx, noticesTable, id)
	})
	if err != nil {
		return domain.Wrap(err)
	}
	s.log.Info("notice deleted", "notice_id", id)
	return nil
}
