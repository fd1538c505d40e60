package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotices_PinnedFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	steps := []NoticeInput{
		{Title: "시스템 점검 안내", Content: "토요일 02시"},
		{Title: "승인 절차 변경", Content: "관리자 승인 필수", IsPinned: true},
		{Title: "신규 기능", Content: "이력 엑셀 다운로드"},
	}
	for i, in := range steps {
		f.svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Hour) }
		_, err := f.svc.CreateNotice(ctx, f.actor, in)
		require.NoError(t, err)
	}

	list, total, err := f.svc.ListNotices(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 3)
	assert.Equal(t, "승인 절차 변경", list[0].Title)
	assert.Equal(t, "신규 기능", list[1].Title)
	assert.Equal(t, "시스템 점검 안내", list[2].Title)
	assert.Equal(t, "관리자", list[0].AuthorName)

	list, total, err = f.svc.ListNotices(ctx, ListFilter{Search: "엑셀"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "신규 기능", list[0].Title)
}

func TestNoticeLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateNotice(ctx, f.actor, NoticeInput{Title: "제목만"})
	assert.True(t, domain.IsValidation(err))

	n, err := f.svc.CreateNotice(ctx, f.actor, NoticeInput{Title: "공지", Content: "내용"})
	require.NoError(t, err)
	require.NotNil(t, n.AuthorID)
	assert.Equal(t, f.actor, *n.AuthorID)

	n, err = f.svc.UpdateNotice(ctx, n.ID, NoticeInput{Title: "공지 (수정)", Content: "내용", IsPinned: true})
	require.NoError(t, err)
	assert.True(t, n.IsPinned)
	assert.Equal(t, f.actor, *n.AuthorID)

	require.NoError(t, f.svc.DeleteNotice(ctx, n.ID))
	_, err = f.svc.GetNotice(ctx, n.ID)
	assert.True(t, domain.IsNotFound(err))
}
