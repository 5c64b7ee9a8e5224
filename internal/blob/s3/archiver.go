package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the query methods it actually calls, not the
// full domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// BondArchiveStore provides read access to bonds for archival purposes.
type BondArchiveStore interface {
	ListByStatus(ctx context.Context, status domain.BondStatus, opts domain.ListOpts) ([]domain.Bond, error)
}

// HoldingArchiveStore provides read access to positions for archival purposes.
type HoldingArchiveStore interface {
	ListByBond(ctx context.Context, bondID int64) ([]domain.Holding, error)
}

// LedgerArchiveStore provides read access to treasury entries for archival
// purposes.
type LedgerArchiveStore interface {
	// ListBefore returns all entries created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TreasuryEntry, error)
	ListByBond(ctx context.Context, bondID int64, opts domain.ListOpts) ([]domain.TreasuryEntry, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// settledBondRecord is one archive line: a settled bond together with its
// final holdings and treasury movements.
type settledBondRecord struct {
	Bond     domain.Bond            `json:"bond"`
	Holdings []domain.Holding       `json:"holdings,omitempty"`
	Ledger   []domain.TreasuryEntry `json:"ledger,omitempty"`
}

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// cold records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	bonds    BondArchiveStore
	holdings HoldingArchiveStore
	ledger   LedgerArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	bonds BondArchiveStore,
	holdings HoldingArchiveStore,
	ledger LedgerArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		bonds:    bonds,
		holdings: holdings,
		ledger:   ledger,
		audit:    audit,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveSettledBonds snapshots every bond settled before the cutoff together
// with its holdings and treasury entries, uploads the JSONL file to S3 at
// archive/settled_bonds/YYYY-MM.jsonl, and records the export in the audit
// log. The count of archived bonds is returned.
func (a *ArchiveImpl) ArchiveSettledBonds(ctx context.Context, before time.Time) (int64, error) {
	settled, err := a.bonds.ListByStatus(ctx, domain.BondSettled, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bonds query: %w", err)
	}

	var records []settledBondRecord
	for _, bond := range settled {
		if !bond.SettledAt.Before(before) {
			continue
		}
		holdings, err := a.holdings.ListByBond(ctx, bond.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled bonds holdings %d: %w", bond.ID, err)
		}
		entries, err := a.ledger.ListByBond(ctx, bond.ID, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled bonds ledger %d: %w", bond.ID, err)
		}
		records = append(records, settledBondRecord{
			Bond:     bond,
			Holdings: holdings,
			Ledger:   entries,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bonds marshal: %w", err)
	}

	path := archivePath("settled_bonds", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled bonds upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.settled_bonds", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settled bonds audit log: %w", err)
	}

	return count, nil
}

// ArchiveTreasuryLedger exports all treasury entries created before the
// cutoff to S3 at archive/treasury_ledger/YYYY-MM.jsonl and records the
// export in the audit log. The count of archived entries is returned.
func (a *ArchiveImpl) ArchiveTreasuryLedger(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive treasury ledger query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive treasury ledger marshal: %w", err)
	}

	path := archivePath("treasury_ledger", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive treasury ledger upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.treasury_ledger", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive treasury ledger audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog exports audit entries created before the cutoff to S3 at
// archive/audit_log/YYYY-MM.jsonl. The export itself is then appended to the
// audit log, so the next archival run picks it up.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log marshal: %w", err)
	}

	path := archivePath("audit_log", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.audit_log", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/settled_bonds/2026-01.jsonl
//	archive/treasury_ledger/2026-01.jsonl
//	archive/audit_log/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
