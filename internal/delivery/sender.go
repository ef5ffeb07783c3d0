package delivery

import (
	"context"
	"errors"
	"fmt"

	"pagepress/internal/metrics"
	"pagepress/internal/models"
	"pagepress/pkg/logger"
)

var (
	// ErrSizeLimit is reported by a Transport when a message is too large.
	ErrSizeLimit = errors.New("delivery: message exceeds transport size limit")

	// ErrUnauthorized is reported by a Transport when the credential was
	// rejected.
	ErrUnauthorized = errors.New("delivery: credential rejected")
)

// Credentials hands out and revokes the token a Transport authenticates with.
type Credentials interface {
	Token(ctx context.Context, interactive bool) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Transport sends one multi-attachment message per call.
type Transport interface {
	Send(ctx context.Context, token string, batch []models.Artifact) error
}

// Report describes one Deliver call. Sent, TooLarge and Failed hold
// indexes into the artifacts passed to Deliver.
type Report struct {
	Batches  int      `json:"batches"`
	Sent     []int    `json:"sent,omitempty"`
	TooLarge []int    `json:"tooLarge,omitempty"`
	Failed   []int    `json:"failed,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type Sender struct {
	transport Transport
	creds     Credentials
	maxCount  int
	maxBytes  int64
	log       *logger.Logger
}

func NewSender(transport Transport, creds Credentials, maxCount int, maxBytes int64, log *logger.Logger) *Sender {
	return &Sender{transport: transport, creds: creds, maxCount: maxCount, maxBytes: maxBytes, log: log}
}

// Deliver sends the artifacts batch by batch. A batch rejected for size
// marks its artifacts as too large; a rejected credential is revoked and
// the batch retried once; any other failure becomes a warning. Once a
// refresh fails the remaining batches are skipped with a single warning.
func (s *Sender) Deliver(ctx context.Context, artifacts []models.Artifact) Report {
	batches := partitionIndices(artifacts, s.maxCount, s.maxBytes)
	rep := Report{Batches: len(batches)}
	if len(batches) == 0 {
		return rep
	}

	token, err := s.creds.Token(ctx, false)
	if err != nil {
		token, err = s.creds.Token(ctx, true)
	}
	if err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("delivery skipped: no credential: %v", err))
		s.log.Warnf("delivery: no credential: %v", err)
		return rep
	}

	var authErr error
	skipped := 0
	for n, idx := range batches {
		if authErr != nil {
			rep.Failed = append(rep.Failed, idx...)
			metrics.RecordBatch("skipped")
			skipped++
			continue
		}
		batch := make([]models.Artifact, len(idx))
		for j, k := range idx {
			batch[j] = artifacts[k]
		}

		err := s.transport.Send(ctx, token, batch)
		if errors.Is(err, ErrUnauthorized) {
			s.log.Infof("delivery: batch %d: credential rejected, refreshing", n+1)
			fresh, rerr := s.refresh(ctx, token)
			if rerr != nil {
				err, authErr = rerr, rerr
			} else {
				token = fresh
				err = s.transport.Send(ctx, token, batch)
			}
		}

		switch {
		case err == nil:
			rep.Sent = append(rep.Sent, idx...)
			metrics.RecordBatch("sent")
		case errors.Is(err, ErrSizeLimit):
			rep.TooLarge = append(rep.TooLarge, idx...)
			metrics.RecordBatch("too_large")
			s.log.Warnf("delivery: batch %d of %d too large (%d attachments)", n+1, len(batches), len(idx))
		default:
			rep.Failed = append(rep.Failed, idx...)
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("batch %d of %d: %v", n+1, len(batches), err))
			metrics.RecordBatch("failed")
			s.log.Warnf("delivery: batch %d of %d: %v", n+1, len(batches), err)
		}
	}
	if skipped > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d remaining batches skipped: %v", skipped, authErr))
		s.log.Warnf("delivery: skipped %d batches after credential refresh failed", skipped)
	}
	return rep
}

func (s *Sender) refresh(ctx context.Context, stale string) (string, error) {
	if err := s.creds.Revoke(ctx, stale); err != nil {
		s.log.Warnf("delivery: revoke: %v", err)
	}
	token, err := s.creds.Token(ctx, true)
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %v", ErrUnauthorized, err)
	}
	return token, nil
}
