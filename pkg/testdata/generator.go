// Package testdata generates realistic demo data for local environments.
package testdata

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/catalog"
	"github.com/jordanlanch/campaigndesk/pkg/database"
)

// Regions, grades and genders customers are drawn from. Customer group
// criteria are written against the same values.
var (
	Regions = []string{"서울", "경기", "인천", "부산", "대구", "광주", "대전", "제주"}
	Grades  = []string{"VIP", "GOLD", "SILVER", "BRONZE"}
	Genders = []string{"M", "F"}
)

var (
	familyNames = []string{"김", "이", "박", "최", "정", "강", "조", "윤", "장", "임"}
	givenNames  = []string{"민준", "서연", "도윤", "지우", "하준", "서윤", "시우", "하은", "주원", "지민", "예준", "수아"}

	campaignSeasons = []string{"봄", "여름", "가을", "겨울", "설날", "추석", "블랙프라이데이", "연말"}
	campaignThemes  = []string{"세일", "프로모션", "VIP 감사 이벤트", "신상품 런칭", "재구매 유도", "휴면고객 리텐션", "앱 설치 이벤트"}
	campaignTypes   = []string{"promotion", "retention", "acquisition", "notice"}
	channels        = []string{"email", "sms", "push", "kakao"}
)

// Customer is one generated row of the customers table
type Customer struct {
	Name   string
	Email  string
	Phone  string
	Region string
	Grade  string
	Gender string
	Age    int
}

// Generator produces reproducible demo data from a seed
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator creates a generator. Equal seeds give equal data.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now()}
}

// Customer generates one customer
func (g *Generator) Customer() Customer {
	f := g.faker
	return Customer{
		Name:   f.RandomString(familyNames) + f.RandomString(givenNames),
		Email:  f.Username() + "@" + f.DomainName(),
		Phone:  fmt.Sprintf("010-%04d-%04d", f.Number(0, 9999), f.Number(0, 9999)),
		Region: f.RandomString(Regions),
		Grade:  f.RandomString(Grades),
		Gender: f.RandomString(Genders),
		Age:    f.Number(18, 75),
	}
}

// Customers generates count customers
func (g *Generator) Customers(count int) []Customer {
	out := make([]Customer, count)
	for i := range out {
		out[i] = g.Customer()
	}
	return out
}

// Campaign generates a campaign input starting within the next two months
func (g *Generator) Campaign() campaign.Input {
	f := g.faker
	start := g.now.AddDate(0, 0, f.Number(1, 60))
	end := start.AddDate(0, 0, f.Number(7, 30))

	picked := map[string]bool{}
	var chs []string
	for i := f.Number(1, len(channels)); i > 0; i-- {
		ch := f.RandomString(channels)
		if !picked[ch] {
			picked[ch] = true
			chs = append(chs, ch)
		}
	}

	return campaign.Input{
		Name:        fmt.Sprintf("%s %s", f.RandomString(campaignSeasons), f.RandomString(campaignThemes)),
		Type:        f.RandomString(campaignTypes),
		Budget:      float64(f.Number(10, 500) * 100000),
		StartDate:   start.Format("2006-01-02"),
		EndDate:     end.Format("2006-01-02"),
		Channels:    chs,
		Description: f.Sentence(12),
	}
}

// Groups returns one customer group per grade plus a regional group
func (g *Generator) Groups() []catalog.GroupInput {
	out := make([]catalog.GroupInput, 0, len(Grades)+1)
	for _, grade := range Grades {
		out = append(out, catalog.GroupInput{
			Name:     grade + " 고객",
			Criteria: catalog.Criteria{Grades: []string{grade}},
		})
	}
	out = append(out, catalog.GroupInput{
		Name:     "수도권 2030",
		Criteria: catalog.Criteria{Regions: []string{"서울", "경기", "인천"}, AgeMin: 20, AgeMax: 39},
	})
	return out
}

// Offers returns a small catalog of offers
func (g *Generator) Offers() []catalog.OfferInput {
	return []catalog.OfferInput{
		{Name: "전 상품 10% 할인", OfferType: "discount", Value: 10},
		{Name: "5천원 쿠폰", OfferType: "coupon", Value: 5000},
		{Name: "포인트 2배 적립", OfferType: "point", Value: 2},
		{Name: "구매 사은품", OfferType: "gift", Value: 0},
	}
}

// Scripts returns one message script per channel
func (g *Generator) Scripts() []catalog.ScriptInput {
	return []catalog.ScriptInput{
		{Name: "시즌 오픈 안내 메일", ChannelType: "email", Subject: "이번 시즌 혜택을 확인하세요", Content: "{{name}}님, 준비한 혜택을 지금 만나보세요."},
		{Name: "할인 문자", ChannelType: "sms", Content: "[광고] {{name}}님 전용 할인 쿠폰이 도착했습니다."},
		{Name: "앱 푸시", ChannelType: "push", Content: "오늘만 진행되는 특가를 놓치지 마세요!"},
		{Name: "알림톡", ChannelType: "kakao", Content: "{{name}}님, 주문하신 혜택 안내드립니다."},
	}
}

// InsertCustomers writes customers in batches of batchSize
func InsertCustomers(ctx context.Context, db *database.Client, customers []Customer, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := time.Now().UTC()
	for start := 0; start < len(customers); start += batchSize {
		end := min(start+batchSize, len(customers))
		ins := db.Builder().Insert("customers").
			Columns("name", "email", "phone", "region", "grade", "gender", "age", "created_at")
		for _, c := range customers[start:end] {
			ins.Values(c.Name, c.Email, c.Phone, c.Region, c.Grade, c.Gender, c.Age, now)
		}
		if _, err := database.Exec(ctx, db.DB, ins); err != nil {
			return fmt.Errorf("failed to insert customers %d-%d: %w", start, end, err)
		}
	}
	return nil
}
