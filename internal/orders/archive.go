package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivedSnapshot is the document written for every accepted submission.
type ArchivedSnapshot struct {
	OrderID    string                `json:"order_id"`
	Snapshot   intake.IntakeSnapshot `json:"snapshot"`
	TotalCents int64                 `json:"total_cents"`
	ArchivedAt time.Time             `json:"archived_at"`
}

// Archiver stores submitted snapshots in S3. If bucket is empty, all operations are no-ops.
type Archiver struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Archive writes the redacted snapshot under intake/v1/by-date/YYYY/MM/DD/<order>.json.
func (a *Archiver) Archive(ctx context.Context, doc ArchivedSnapshot) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	doc.Snapshot = RedactSnapshot(doc.Snapshot)
	if doc.ArchivedAt.IsZero() {
		doc.ArchivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("orders: marshal snapshot: %w", err)
	}
	at := doc.ArchivedAt
	key := fmt.Sprintf("intake/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), doc.OrderID)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("orders: s3 put %s: %w", key, err)
	}
	a.logger.Info("archived intake snapshot", "order_id", doc.OrderID, "s3_key", key)
	return key, nil
}
