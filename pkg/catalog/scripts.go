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

// Channel types shared by scripts and channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelKakao = "kakao"
	ChannelPush  = "push"
)

var channelTypes = []string{ChannelEmail, ChannelSMS, ChannelKakao, ChannelPush}

var scriptStatuses = []string{"draft", "active", "archived"}

// smsMaxLength is the LMS limit in characters
const smsMaxLength = 2000

// Script is the message copy sent through a channel
type Script struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	ChannelType string    `json:"channel_type"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScriptInput is the writable part of a Script
type ScriptInput struct {
	Name        string `json:"name"`
	ChannelType string `json:"channel_type"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	Status      string `json:"status"`
}

var scriptColumns = []string{"id", "name", "channel_type", "subject", "content", "status", "created_at", "updated_at"}

func scanScript(rows *sql.Rows) (Script, error) {
	var sc Script
	err := rows.Scan(&sc.ID, &sc.Name, &sc.ChannelType, &sc.Subject, &sc.Content, &sc.Status, &sc.CreatedAt, &sc.UpdatedAt)
	sc.CreatedAt, sc.UpdatedAt = sc.CreatedAt.UTC(), sc.UpdatedAt.UTC()
	return sc, err
}

func prepareScript(in ScriptInput) (ScriptInput, error) {
	var err error
	if in.Name, err = required(in.Name, "스크립트 이름"); err != nil {
		return in, err
	}
	in.ChannelType = strings.ToLower(strings.TrimSpace(in.ChannelType))
	if err := oneOf(in.ChannelType, channelTypes, "채널 유형"); err != nil {
		return in, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return in, domain.NewValidationError("스크립트 내용은 필수입니다.")
	}
	in.Subject = strings.TrimSpace(in.Subject)
	if in.ChannelType == ChannelEmail && in.Subject == "" {
		return in, domain.NewValidationError("이메일 스크립트에는 제목이 필요합니다.")
	}
	if in.ChannelType == ChannelSMS && len([]rune(in.Content)) > smsMaxLength {
		return in, domain.NewValidationError(fmt.Sprintf("문자 스크립트는 %d자를 넘을 수 없습니다.", smsMaxLength))
	}
	in.Status = strings.TrimSpace(in.Status)
	if in.Status == "" {
		in.Status = "draft"
	}
	if err := oneOf(in.Status, scriptStatuses, "스크립트 상태"); err != nil {
		return in, err
	}
	return in, nil
}

// ListScripts returns a page of scripts, newest first
func (s *Service) ListScripts(ctx context.Context, f ListFilter) ([]Script, int, error) {
	return page(ctx, s, f, scriptsTable,
		func(sel *entsql.Selector, t *entsql.SelectTable) {
			if f.Status != "" {
				sel.Where(entsql.EQ(t.C("status"), f.Status))
			}
			if f.Type != "" {
				sel.Where(entsql.EQ(t.C("channel_type"), f.Type))
			}
			searchFold(sel, f.Search, t.C("name"), t.C("subject"), t.C("content"))
		},
		func(t *entsql.SelectTable) *entsql.Selector {
			return s.db.Builder().Select(qualify(t, scriptColumns)...).From(t)
		},
		func(t *entsql.SelectTable) []string { return []string{entsql.Desc(t.C("created_at")), entsql.Desc(t.C("id"))} },
		scanScript,
	)
}

// GetScript returns one script
func (s *Service) GetScript(ctx context.Context, id int) (*Script, error) {
	b := s.db.Builder()
	t := b.Table(scriptsTable)
	return one(ctx, s, b.Select(qualify(t, scriptColumns)...).From(t).Where(entsql.EQ(t.C("id"), id)), scanScript, "스크립트", id)
}

// CreateScript stores a new script
func (s *Service) CreateScript(ctx context.Context, in ScriptInput) (*Script, error) {
	in, err := prepareScript(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(scriptsTable).
		Columns("name", "channel_type", "subject", "content", "status", "created_at", "updated_at").
		Values(in.Name, in.ChannelType, in.Subject, in.Content, in.Status, now, now))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to insert script: %w", err))
	}
	s.log.Info("script created", "script_id", id, "channel_type", in.ChannelType)
	return s.GetScript(ctx, id)
}

// UpdateScript replaces a script's fields
func (s *Service) UpdateScript(ctx context.Context, id int, in ScriptInput) (*Script, error) {
	in, err := prepareScript(in)
	if err != nil {
		return nil, err
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, scriptsTable, id, "스크립트"); err != nil {
			return err
		}
		_, err := database.Exec(ctx, tx, s.db.Builder().Update(scriptsTable).
			Set("name", in.Name).
			Set("channel_type", in.ChannelType).
			Set("subject", in.Subject).
			Set("content", in.Content).
			Set("status", in.Status).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to update script: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	return s.GetScript(ctx, id)
}

// DeleteScript removes a script no active campaign uses
func (s *Service) DeleteScript(ctx context.Context, id int) error {
	if err := s.deleteReferenced(ctx, scriptsTable, id, "스크립트"); err != nil {
		return err
	}
	s.log.Info("script deleted", "script_id", id)
	return nil
}
