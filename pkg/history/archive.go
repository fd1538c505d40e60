package history

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ObjectPutter is the part of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds the archive bucket settings
type S3Config struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	Bucket             string
	Prefix             string
}

// NewS3Client builds an S3 client from static credentials
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Archiver exports whole months of history to XLSX and stores them in S3.
// History rows are kept in the database; the archive is an offline copy.
type Archiver struct {
	history *Service
	s3      ObjectPutter
	bucket  string
	prefix  string
	log     logger.Logger
}

// NewArchiver creates an archiver uploading into bucket under prefix
func NewArchiver(history *Service, client ObjectPutter, bucket, prefix string, log logger.Logger) *Archiver {
	if prefix == "" {
		prefix = "campaign-history"
	}
	return &Archiver{history: history, s3: client, bucket: bucket, prefix: prefix, log: log.With("component", "history_archiver")}
}

// ArchiveMonth uploads the rows created during the calendar month containing
// month (in the history service location). It returns the object key.
func (a *Archiver) ArchiveMonth(ctx context.Context, month time.Time) (string, int, error) {
	m := month.In(a.history.loc)
	start := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, a.history.loc)
	end := start.AddDate(0, 1, 0)

	var buf bytes.Buffer
	n, err := a.history.ExportXLSX(ctx, Filter{Since: start, Until: end}, &buf)
	if err != nil {
		return "", 0, err
	}

	key := fmt.Sprintf("%s/%s.xlsx", a.prefix, start.Format("2006-01"))
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(xlsxContentType),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload history archive: %w", err)
	}

	a.log.Info("campaign history archived", "key", key, "rows", n)
	return key, n, nil
}

// ArchivePreviousMonth archives the month before the current one
func (a *Archiver) ArchivePreviousMonth(ctx context.Context) (string, int, error) {
	now := a.history.now().In(a.history.loc)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.history.loc)
	return a.ArchiveMonth(ctx, firstOfMonth.AddDate(0, -1, 0))
}
