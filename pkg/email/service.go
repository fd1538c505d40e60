package email

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/jordanlanch/campaigndesk/pkg/approval"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sender is the part of the SendGrid client the service uses
type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	baseURL     string
	client      sender
	useSendGrid bool
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails will be sent via SendGrid.
// Otherwise, emails will be logged to console (development mode).
func NewService(fromEmail, fromName, baseURL, sendGridAPIKey string) *Service {
	s := &Service{
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   baseURL,
	}
	if sendGridAPIKey != "" {
		s.client = sendgrid.NewSendClient(sendGridAPIKey)
		s.useSendGrid = true
		log.Printf("✅ Email service initialized with SendGrid")
	} else {
		log.Printf("⚠️  Email service in console-only mode (set SENDGRID_API_KEY for production)")
	}
	return s
}

var statusLabels = map[approval.RequestStatus]string{
	approval.StatusApproved: "승인",
	approval.StatusRejected: "반려",
}

// SendApprovalRequested tells the approver a campaign waits for their decision
func (s *Service) SendApprovalRequested(ctx context.Context, n approval.Notice) error {
	link := fmt.Sprintf("%s/approvals/%d", s.baseURL, n.RequestID)
	subject := fmt.Sprintf("[승인 요청] %s", n.CampaignName)

	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>캠페인 승인 요청</h2>
			<p>%s님,</p>
			<p><strong>%s</strong>님이 캠페인 <strong>%s</strong>의 승인을 요청했습니다.</p>
			%s
			<p><a href="%s" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">요청 확인하기</a></p>
		</body>
		</html>
	`, html.EscapeString(n.ToName), html.EscapeString(n.FromName), html.EscapeString(n.CampaignName),
		quote(n.Message), link)

	plainText := fmt.Sprintf(`%s님,

%s님이 캠페인 "%s"의 승인을 요청했습니다.
%s
요청 확인: %s
`, n.ToName, n.FromName, n.CampaignName, plainQuote(n.Message), link)

	return s.send(ctx, n.ToEmail, n.ToName, subject, body, plainText, link)
}

// SendApprovalResolved tells the requester how the approver decided
func (s *Service) SendApprovalResolved(ctx context.Context, n approval.Notice) error {
	link := fmt.Sprintf("%s/campaigns/%d", s.baseURL, n.CampaignID)
	label := statusLabels[n.Status]
	if label == "" {
		label = string(n.Status)
	}
	subject := fmt.Sprintf("[%s] %s", label, n.CampaignName)

	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>캠페인 %s 안내</h2>
			<p>%s님,</p>
			<p><strong>%s</strong>님이 캠페인 <strong>%s</strong>을(를) %s했습니다.</p>
			%s
			<p><a href="%s">캠페인 보기</a></p>
		</body>
		</html>
	`, label, html.EscapeString(n.ToName), html.EscapeString(n.FromName), html.EscapeString(n.CampaignName),
		label, quote(n.Message), link)

	plainText := fmt.Sprintf(`%s님,

%s님이 캠페인 "%s"을(를) %s했습니다.
%s
캠페인 보기: %s
`, n.ToName, n.FromName, n.CampaignName, label, plainQuote(n.Message), link)

	return s.send(ctx, n.ToEmail, n.ToName, subject, body, plainText, link)
}

// SendPasswordResetEmail sends a password reset link
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetURL string) error {
	subject := "[캠페인 관리] 비밀번호 재설정"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>비밀번호 재설정</h2>
			<p>%s님,</p>
			<p>비밀번호 재설정 요청을 받았습니다. 아래 버튼을 눌러 새 비밀번호를 설정해 주세요.</p>
			<p><a href="%s" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">비밀번호 재설정</a></p>
			<p><strong>이 링크는 1시간 후 만료됩니다.</strong></p>
			<p>요청하지 않으셨다면 이 메일을 무시하셔도 됩니다. 비밀번호는 변경되지 않습니다.</p>
		</body>
		</html>
	`, html.EscapeString(toName), resetURL)

	plainText := fmt.Sprintf(`%s님,

비밀번호 재설정 요청을 받았습니다. 아래 링크에서 새 비밀번호를 설정해 주세요.

%s

이 링크는 1시간 후 만료됩니다.
요청하지 않으셨다면 이 메일을 무시하셔도 됩니다.
`, toName, resetURL)

	return s.send(ctx, toEmail, toName, subject, body, plainText, resetURL)
}

func quote(message string) string {
	if message == "" {
		return ""
	}
	return fmt.Sprintf(`<blockquote style="border-left: 3px solid #ccc; padding-left: 12px;">%s</blockquote>`, html.EscapeString(message))
}

func plainQuote(message string) string {
	if message == "" {
		return ""
	}
	return "\n> " + message + "\n"
}

func (s *Service) send(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody, actionURL string) error {
	if toEmail == "" {
		return fmt.Errorf("email: no recipient for %q", subject)
	}
	if s.useSendGrid {
		return s.sendViaSendGrid(ctx, toEmail, toName, subject, htmlBody, plainTextBody)
	}
	return s.logEmailToConsole(toEmail, toName, subject, actionURL)
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		log.Printf("❌ SendGrid error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		log.Printf("❌ SendGrid returned error status %d: %s", response.StatusCode, response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	log.Printf("✅ Email sent successfully to %s (SendGrid status: %d)", toEmail, response.StatusCode)
	return nil
}

// logEmailToConsole logs email details to console (development mode)
func (s *Service) logEmailToConsole(toEmail, toName, subject, actionURL string) error {
	log.Printf("📧 [EMAIL] %s", subject)
	log.Printf("   To: %s <%s>", toName, toEmail)
	log.Printf("   From: %s <%s>", s.fromName, s.fromEmail)
	log.Printf("   Action URL: %s", actionURL)
	log.Printf("   ⚠️  Email NOT sent (development mode)")
	return nil
}
