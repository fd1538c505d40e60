package errors

import (
	stderrors "errors"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
)

func capture(c echo.Context, err error) {
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
		return
	}
	if sentry.CurrentHub().Client() != nil {
		sentry.CaptureException(err)
	}
}

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "입력값을 확인해 주세요.",
	})
}

// BadRequest returns a 400 with a message that is safe to show
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, err error) error {
	log.Printf("[DATABASE ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
	capture(c, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "데이터베이스 오류가 발생했습니다. 잠시 후 다시 시도해 주세요.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
	capture(c, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "처리 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "인증이 필요합니다.",
	})
}

// SessionExpiredError tells the client its session ended through inactivity
func SessionExpiredError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "session_expired",
		Message: "장시간 활동이 없어 로그아웃되었습니다. 다시 로그인해 주세요.",
	})
}

// ForbiddenError returns a generic forbidden error
func ForbiddenError(c echo.Context, reason string) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "접근 권한이 없습니다.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "요청한 리소스를 찾을 수 없습니다.",
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message, // Message is safe to expose
	})
}

// FromDomain maps err to the matching response. Domain errors carry a message
// that is safe to expose; anything else is treated as an internal failure.
func FromDomain(c echo.Context, err error) error {
	var de *domain.DomainError
	if !stderrors.As(err, &de) {
		return InternalError(c, err)
	}

	var status int
	var code string
	switch de.Code {
	case domain.ErrCodeNotFound:
		status, code = http.StatusNotFound, "not_found"
	case domain.ErrCodeValidation:
		status, code = http.StatusBadRequest, "validation_error"
	case domain.ErrCodeConflict:
		status, code = http.StatusConflict, "conflict"
	case domain.ErrCodeForbidden:
		status, code = http.StatusForbidden, "forbidden"
	case domain.ErrCodeUnauthorized:
		status, code = http.StatusUnauthorized, "unauthorized"
	default:
		if de.Err != nil {
			return DatabaseError(c, de.Err)
		}
		return InternalError(c, de)
	}

	if de.Err != nil {
		log.Printf("[%s] Path: %s, Error: %v", de.Code, c.Request().URL.Path, de.Err)
	}

	return c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: de.Message,
		Details: de.Details,
	})
}
