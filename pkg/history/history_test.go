package history

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*Service, *database.Client) {
	t.Helper()
	db := dbtest.Open(t)
	s := NewService(db, logger.Nop(), time.UTC)
	s.now = func() time.Time { return fixedNow }
	return s, db
}

func createUser(t *testing.T, db *database.Client, name string) int {
	t.Helper()
	id, err := db.InsertID(context.Background(), db.DB, db.Builder().Insert("users").
		Columns("email", "name", "password_hash", "created_at", "updated_at").
		Values(name+"@example.com", name, "x", fixedNow, fixedNow))
	require.NoError(t, err)
	return id
}

func intPtr(v int) *int { return &v }

func TestAppend_AndForCampaign(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()
	actor := createUser(t, db, "김철수")

	_, err := s.Append(ctx, db.DB, Entry{
		CampaignID: 1, CampaignName: "봄 세일", ActionType: ActionCreated, ChangedBy: intPtr(actor),
		NewStatus: "DRAFT", Comment: "캠페인 생성", CreatedAt: fixedNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = s.Append(ctx, db.DB, Entry{
		CampaignID: 1, CampaignName: "봄 세일", ActionType: ActionApproved, ChangedBy: intPtr(actor),
		PreviousStatus: "APPROVAL_PENDING", NewStatus: "APPROVED", Comment: "승인대기 → 승인완료",
	})
	require.NoError(t, err)
	_, err = s.Append(ctx, db.DB, Entry{CampaignID: 2, CampaignName: "other", ActionType: ActionCreated})
	require.NoError(t, err)

	entries, err := s.ForCampaign(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, ActionApproved, entries[0].ActionType)
	assert.Equal(t, "APPROVAL_PENDING", entries[0].PreviousStatus)
	assert.Equal(t, "APPROVED", entries[0].NewStatus)
	assert.Equal(t, "김철수", entries[0].ChangedByName)
	require.NotNil(t, entries[0].ChangedBy)
	assert.Equal(t, actor, *entries[0].ChangedBy)

	assert.Equal(t, ActionCreated, entries[1].ActionType)
	assert.Empty(t, entries[1].PreviousStatus)
}

func TestList_Filters(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()
	actor := createUser(t, db, "이영희")

	rows := []Entry{
		{CampaignID: 1, CampaignName: "여름 프로모션", ActionType: ActionCreated, CreatedAt: fixedNow.AddDate(0, 0, -20)},
		{CampaignID: 1, CampaignName: "여름 프로모션", ActionType: ActionUpdated, CreatedAt: fixedNow.AddDate(0, 0, -3)},
		{CampaignID: 2, CampaignName: "VIP 리텐션", ActionType: ActionApproved, ChangedBy: intPtr(actor), Comment: "ok", CreatedAt: fixedNow.Add(-time.Hour)},
		{CampaignID: 3, CampaignName: "Winter", ActionType: ActionDeleted, Comment: "캠페인 삭제", CreatedAt: fixedNow.AddDate(0, -2, 0)},
	}
	for _, e := range rows {
		_, err := s.Append(ctx, db.DB, e)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by campaign", Filter{CampaignID: 1}, 2},
		{"by action", Filter{ActionType: "approved"}, 1},
		{"search campaign name", Filter{Search: "프로모션"}, 2},
		{"search case-insensitive", Filter{Search: "winter"}, 1},
		{"search actor name", Filter{Search: "영희"}, 1},
		{"search comment", Filter{Search: "삭제"}, 1},
		{"today", Filter{DateRange: RangeToday}, 1},
		{"week", Filter{DateRange: RangeWeek}, 2},
		{"month", Filter{DateRange: RangeMonth}, 3},
		{"unknown range ignored", Filter{DateRange: "decade"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, entries, tt.want)
		})
	}
}

func TestList_Pagination(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, db.DB, Entry{
			CampaignID: 1, CampaignName: "c", ActionType: ActionUpdated,
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page2, total, err := s.List(ctx, Filter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page2, 2)
	assert.True(t, page2[0].CreatedAt.After(page2[1].CreatedAt))
}

func TestStatistics(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{CampaignID: 1, ActionType: ActionApproved, CreatedAt: fixedNow.Add(-time.Hour)},
		{CampaignID: 1, ActionType: ActionApproved, CreatedAt: fixedNow.AddDate(0, 0, -2)},
		{CampaignID: 1, ActionType: ActionUpdated, CreatedAt: fixedNow.Add(-2 * time.Hour)},
		{CampaignID: 2, ActionType: ActionRejected, CreatedAt: fixedNow.AddDate(0, 0, -1)},
	} {
		_, err := s.Append(ctx, db.DB, e)
		require.NoError(t, err)
	}

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalHistory)
	assert.Equal(t, 2, stats.ApprovedCount)
	assert.Equal(t, 1, stats.UpdatedCount)
	assert.Equal(t, 2, stats.TodayActivity)
}

func TestStatistics_Empty(t *testing.T) {
	s, _ := setupService(t)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Statistics{}, *stats)
}

func TestExportXLSX(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()

	_, err := s.Append(ctx, db.DB, Entry{CampaignID: 9, CampaignName: "가을 이벤트", ActionType: ActionCreated, NewStatus: "DRAFT"})
	require.NoError(t, err)
	_, err = s.Append(ctx, db.DB, Entry{CampaignID: 9, CampaignName: "가을 이벤트", ActionType: ActionDeleted, PreviousStatus: "DRAFT"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.ExportXLSX(ctx, Filter{CampaignID: 9}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Campaign", rows[0][2])
	assert.Equal(t, "가을 이벤트", rows[1][2])
	assert.Equal(t, "created", rows[1][3])
	assert.Equal(t, "deleted", rows[2][3])
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchivePreviousMonth(t *testing.T) {
	s, db := setupService(t)
	ctx := context.Background()

	// fixedNow is mid-March, so February is archived
	for _, at := range []time.Time{
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC),
	} {
		_, err := s.Append(ctx, db.DB, Entry{CampaignID: 1, CampaignName: "c", ActionType: ActionUpdated, CreatedAt: at})
		require.NoError(t, err)
	}

	putter := &fakePutter{}
	a := NewArchiver(s, putter, "archive-bucket", "", logger.Nop())

	key, n, err := a.ArchivePreviousMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "campaign-history/2026-02.xlsx", key)
	assert.Equal(t, 2, n)

	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "archive-bucket", *putter.inputs[0].Bucket)
	assert.Equal(t, xlsxContentType, *putter.inputs[0].ContentType)
	assert.NotEmpty(t, putter.bodies[0])

	// archiving never removes rows
	_, total, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestValidActionType(t *testing.T) {
	assert.True(t, ValidActionType("approved"))
	assert.True(t, ValidActionType("deleted"))
	assert.False(t, ValidActionType("exploded"))
}
