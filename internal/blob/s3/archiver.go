package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

const jsonlContentType = "application/x-ndjson"

// Archiver implements domain.Archiver. For one UTC day it writes
//
//	archive/opportunities/YYYY/MM/DD.jsonl
//	archive/trades/YYYY/MM/DD.jsonl
//
// Records are not deleted from the primary store.
type Archiver struct {
	writer domain.BlobWriter
	opps   domain.OpportunityStore
	trades domain.TradeStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, opps domain.OpportunityStore, trades domain.TradeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		opps:   opps,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay uploads every opportunity and trade from day's UTC date and
// returns the number of records written. Empty kinds are skipped.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	opps, err := a.opps.ListOpportunities(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	n, err := upload(ctx, a.writer, archivePath("opportunities", from), opps)
	if err != nil {
		return 0, err
	}

	trades, err := a.trades.ListTrades(ctx, from, to)
	if err != nil {
		return n, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	m, err := upload(ctx, a.writer, archivePath("trades", from), trades)
	if err != nil {
		return n, err
	}

	a.logger.InfoContext(ctx, "archived day",
		slog.String("day", from.Format(time.DateOnly)),
		slog.Int("opportunities", n),
		slog.Int("trades", m),
	)
	return n + m, nil
}

func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}
	if len(buf) >= multipartThreshold {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return len(records), nil
}

func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format("2006/01/02"))
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
