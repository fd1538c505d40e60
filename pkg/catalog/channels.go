package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/nyaruka/phonenumbers"
)

// senderRegion is used to parse sender numbers written without a country code
const senderRegion = "KR"

var channelStatuses = []string{"active", "inactive"}

// ErrNoCipher is returned when credentials are written without an encryption key
var ErrNoCipher = errors.New("catalog: no encryption key configured for channel credentials")

// Channel is a configured sending channel. Credentials are write-only.
type Channel struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	ChannelType        string    `json:"channel_type"`
	Sender             string    `json:"sender"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	HasCredentials     bool      `json:"has_credentials"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ChannelInput is the writable part of a Channel. A nil Credentials map on
// update keeps the stored credentials; an empty map clears them.
type ChannelInput struct {
	Name               string            `json:"name"`
	ChannelType        string            `json:"channel_type"`
	Sender             string            `json:"sender"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute"`
	Credentials        map[string]string `json:"credentials"`
	Status             string            `json:"status"`
}

var channelColumns = []string{"id", "name", "channel_type", "sender", "rate_limit_per_minute", "credentials", "status", "created_at", "updated_at"}

func scanChannel(rows *sql.Rows) (Channel, error) {
	var (
		ch    Channel
		creds string
	)
	err := rows.Scan(&ch.ID, &ch.Name, &ch.ChannelType, &ch.Sender, &ch.RateLimitPerMinute, &creds,
		&ch.Status, &ch.CreatedAt, &ch.UpdatedAt)
	ch.HasCredentials = creds != ""
	ch.CreatedAt, ch.UpdatedAt = ch.CreatedAt.UTC(), ch.UpdatedAt.UTC()
	return ch, err
}

func (s *Service) prepareChannel(in ChannelInput) (ChannelInput, error) {
	var err error
	if in.Name, err = required(in.Name, "채널 이름"); err != nil {
		return in, err
	}
	in.ChannelType = strings.ToLower(strings.TrimSpace(in.ChannelType))
	if err := oneOf(in.ChannelType, channelTypes, "채널 유형"); err != nil {
		return in, err
	}
	if in.Sender, err = s.normalizeSender(in.ChannelType, in.Sender); err != nil {
		return in, err
	}
	if in.RateLimitPerMinute < 0 {
		return in, domain.NewValidationError("분당 발송 한도는 0 이상이어야 합니다.")
	}
	in.Status = strings.TrimSpace(in.Status)
	if in.Status == "" {
		in.Status = "active"
	}
	if err := oneOf(in.Status, channelStatuses, "채널 상태"); err != nil {
		return in, err
	}
	return in, nil
}

// normalizeSender checks the sender against the channel type. Phone senders
// are stored in E.164.
func (s *Service) normalizeSender(channelType, sender string) (string, error) {
	sender = strings.TrimSpace(sender)
	switch channelType {
	case ChannelEmail:
		if err := s.validate.Var(sender, "required,email"); err != nil {
			return "", domain.NewValidationError("이메일 채널의 발신자는 올바른 이메일 주소여야 합니다.")
		}
		return strings.ToLower(sender), nil
	case ChannelSMS, ChannelKakao:
		num, err := phonenumbers.Parse(sender, senderRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return "", domain.NewValidationError("발신 번호가 올바르지 않습니다.").
				WithDetails(map[string]any{"sender": sender})
		}
		return phonenumbers.Format(num, phonenumbers.E164), nil
	default:
		return sender, nil
	}
}

func (s *Service) sealCredentials(creds map[string]string) (string, error) {
	if len(creds) == 0 {
		return "", nil
	}
	if s.cipher == nil {
		return "", domain.NewValidationError("암호화 키가 설정되지 않아 채널 인증 정보를 저장할 수 없습니다.").
			WithDetails(map[string]any{"reason": ErrNoCipher.Error()})
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}
	return s.cipher.Encrypt(string(raw))
}

// ListChannels returns a page of channels, newest first
func (s *Service) ListChannels(ctx context.Context, f ListFilter) ([]Channel, int, error) {
	return page(ctx, s, f, channelsTable,
		func(sel *entsql.Selector, t *entsql.SelectTable) {
			if f.Status != "" {
				sel.Where(entsql.EQ(t.C("status"), f.Status))
			}
			if f.Type != "" {
				sel.Where(entsql.EQ(t.C("channel_type"), f.Type))
			}
			searchFold(sel, f.Search, t.C("name"), t.C("sender"))
		},
		func(t *entsql.SelectTable) *entsql.Selector {
			return s.db.Builder().Select(qualify(t, channelColumns)...).From(t)
		},
		func(t *entsql.SelectTable) []string { return []string{entsql.Desc(t.C("created_at")), entsql.Desc(t.C("id"))} },
		scanChannel,
	)
}

// GetChannel returns one channel without its credentials
func (s *Service) GetChannel(ctx context.Context, id int) (*Channel, error) {
	b := s.db.Builder()
	t := b.Table(channelsTable)
	return one(ctx, s, b.Select(qualify(t, channelColumns)...).From(t).Where(entsql.EQ(t.C("id"), id)), scanChannel, "채널", id)
}

// CreateChannel stores a channel, encrypting any credentials
func (s *Service) CreateChannel(ctx context.Context, in ChannelInput) (*Channel, error) {
	in, err := s.prepareChannel(in)
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealCredentials(in.Credentials)
	if err != nil {
		return nil, domain.Wrap(err)
	}

	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(channelsTable).
		Columns("name", "channel_type", "sender", "rate_limit_per_minute", "credentials", "status", "created_at", "updated_at").
		Values(in.Name, in.ChannelType, in.Sender, in.RateLimitPerMinute, sealed, in.Status, now, now))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to insert channel: %w", err))
	}
	s.log.Info("channel created", "channel_id", id, "channel_type", in.ChannelType)
	return s.GetChannel(ctx, id)
}

// UpdateChannel replaces a channel's fields
func (s *Service) UpdateChannel(ctx context.Context, id int, in ChannelInput) (*Channel, error) {
	in, err := s.prepareChannel(in)
	if err != nil {
		return nil, err
	}

	upd := s.db.Builder().Update(channelsTable).
		Set("name", in.Name).
		Set("channel_type", in.ChannelType).
		Set("sender", in.Sender).
		Set("rate_limit_per_minute", in.RateLimitPerMinute).
		Set("status", in.Status).
		Set("updated_at", s.now().UTC())
	if in.Credentials != nil {
		sealed, err := s.sealCredentials(in.Credentials)
		if err != nil {
			return nil, domain.Wrap(err)
		}
		upd.Set("credentials", sealed)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, channelsTable, id, "채널"); err != nil {
			return err
		}
		if _, err := database.Exec(ctx, tx, upd.Where(entsql.EQ("id", id))); err != nil {
			return fmt.Errorf("failed to update channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	return s.GetChannel(ctx, id)
}

// DeleteChannel removes a channel
func (s *Service) DeleteChannel(ctx context.Context, id int) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, channelsTable, id, "채널"); err != nil {
			return err
		}
		return s.deleteRow(ctx, tx, channelsTable, id)
	})
	if err != nil {
		return domain.Wrap(err)
	}
	s.log.Info("channel deleted", "channel_id", id)
	return nil
}

// Credentials decrypts a channel's stored credentials for a sender
// integration. It is never exposed over HTTP.
func (s *Service) Credentials(ctx context.Context, id int) (map[string]string, error) {
	b := s.db.Builder()
	var sealed string
	err := database.QueryRow(ctx, s.db.DB, b.Select("credentials").From(b.Table(channelsTable)).Where(entsql.EQ("id", id))).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("채널", id)
	}
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to load channel credentials: %w", err))
	}

	creds := map[string]string{}
	if sealed == "" {
		return creds, nil
	}
	if s.cipher == nil {
		return nil, domain.NewInternalError(ErrNoCipher)
	}
	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to decrypt credentials of channel %d: %w", id, err))
	}
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("channel %d has malformed credentials: %w", id, err))
	}
	return creds, nil
}
