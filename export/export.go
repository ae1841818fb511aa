/*
Package export produces a consistent archive of one contract's ledger.

PURPOSE:
  A read-only walk over the contract snapshot, its installments in
  period order, and every payment, item, notification log entry, and
  contract event, emitted as fixed-column CSV tables plus the fetched
  attachments inside a single ZIP.

GUARANTEES:
  - Never mutates the ledger.
  - Deterministic: same ledger in, same tables and ordering out
    (rows by period, then creation order; fixed column order; fixed
    zip entry order and timestamps).
  - Degrades, never aborts: a failed attachment fetch becomes a line
    in the missing-items note.

ARCHIVE LAYOUT:
  expediente_{contractId}/
    contrato.pdf                      (when the contract has a PDF)
    data/contract.json
    data/installments.csv
    data/items.csv
    data/payments.csv
    data/notifications_log.csv
    data/events.csv
    attachments/payments/{paymentId}_{name}
    attachments/events/{eventId}_{name}
    README.txt                        (only when something is missing)
*/
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/cobranza/rent-ledger/blob"
	"github.com/cobranza/rent-ledger/ledger"
)

const defaultConcurrency = 4

// Aggregator assembles contract archives.
type Aggregator struct {
	Repo  ledger.Repository
	Blobs blob.Storage

	// Concurrency bounds the attachment fetch fan-out. Zero means
	// defaultConcurrency.
	Concurrency int
}

func NewAggregator(repo ledger.Repository, blobs blob.Storage) *Aggregator {
	return &Aggregator{Repo: repo, Blobs: blobs}
}

// Export writes the contract's archive to w. Returns NotFoundError if
// the contract does not exist; attachment failures are recorded in
// the archive, not returned.
func (a *Aggregator) Export(ctx context.Context, contractID ledger.ContractID, w io.Writer) error {
	contract, err := a.Repo.GetContract(ctx, contractID)
	if err != nil {
		return err
	}

	installments, err := a.Repo.ListInstallments(ctx, contractID)
	if err != nil {
		return err
	}
	events, err := a.Repo.ListContractEvents(ctx, contractID)
	if err != nil {
		return err
	}

	var (
		missing          []string
		installmentRows  [][]string
		itemRows         [][]string
		paymentRows      [][]string
		notificationRows [][]string
		eventRows        [][]string
		jobs             []fetchJob
	)

	// Rows come out ordered by period (ListInstallments) then by
	// creation order (the repository's list methods); fetch
	// concurrency below never reorders them.
	for _, inst := range installments {
		installmentRows = append(installmentRows, []string{
			string(inst.ID),
			string(inst.ContractID),
			inst.Period.String(),
			inst.DueDate.String(),
			string(inst.Status),
			inst.Totals.Total.String(),
			inst.Totals.Paid.String(),
			inst.Totals.Due.String(),
		})

		items, err := a.Repo.ListItems(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			itemRows = append(itemRows, []string{
				string(inst.ID),
				item.ID,
				string(item.Type),
				item.Label,
				item.Amount.String(),
				isoTime(item.CreatedAt),
			})
		}

		payments, err := a.Repo.ListPayments(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			var receiptName, receiptPath string
			if p.Receipt != nil {
				receiptName = p.Receipt.Name
				receiptPath = p.Receipt.Path
			}
			paymentRows = append(paymentRows, []string{
				string(inst.ID),
				p.ID,
				p.Amount.String(),
				isoTime(p.PaidAt),
				string(p.Method),
				p.CollectedBy,
				fmt.Sprintf("%t", p.WithoutReceipt),
				receiptName,
				receiptPath,
			})

			if p.Receipt != nil {
				name := p.Receipt.Name
				if name == "" {
					name = "payment_" + p.ID
				}
				jobs = append(jobs, fetchJob{
					path:    p.Receipt.Path,
					dest:    "attachments/payments/" + p.ID + "_" + safeFilename(name),
					missing: fmt.Sprintf("payment receipt %s (could not be fetched)", p.ID),
				})
			}
		}

		logEntries, err := a.Repo.ListNotificationLog(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, e := range logEntries {
			notificationRows = append(notificationRows, []string{
				string(inst.ID),
				isoTime(e.At),
				e.DayKey,
				e.Type,
				e.Channel,
				e.Audience,
				e.Recipient,
			})
		}
	}

	for _, e := range events {
		eventRows = append(eventRows, []string{
			e.ID,
			e.Type,
			isoTime(e.At),
			e.Detail,
			joinTags(e.Tags),
			string(e.InstallmentID),
			e.CreatedBy,
			fmt.Sprintf("%d", len(e.Attachments)),
		})
		for _, att := range e.Attachments {
			name := att.Name
			if name == "" {
				name = "adjunto"
			}
			jobs = append(jobs, fetchJob{
				path:    att.Path,
				dest:    "attachments/events/" + e.ID + "_" + safeFilename(name),
				missing: fmt.Sprintf("event attachment %s (could not be fetched)", e.ID),
			})
		}
	}

	// Contract PDF goes to the archive root, ahead of other fetches.
	hasPDFJob := false
	if contract.PDF != nil && contract.PDF.Path != "" {
		jobs = append([]fetchJob{{
			path:    contract.PDF.Path,
			dest:    "contrato.pdf",
			missing: "contrato.pdf (could not be fetched)",
		}}, jobs...)
		hasPDFJob = true
	} else {
		missing = append(missing, "contrato.pdf (no PDF attached)")
	}

	fetched := a.fetchAll(ctx, jobs)

	if len(notificationRows) == 0 {
		missing = append(missing, "notifications_log.csv (no entries)")
	}

	// Assemble the zip in fixed entry order.
	zw := zip.NewWriter(w)
	root := "expediente_" + string(contractID) + "/"

	contractJSON, err := json.MarshalIndent(contractDoc(contract), "", "  ")
	if err != nil {
		return err
	}
	if err := writeEntry(zw, root+"data/contract.json", contractJSON); err != nil {
		return err
	}
	if err := writeCSV(zw, root+"data/installments.csv",
		[]string{"installmentId", "contractId", "period", "dueDate", "status", "total", "paid", "due"},
		installmentRows); err != nil {
		return err
	}
	if err := writeCSV(zw, root+"data/items.csv",
		[]string{"installmentId", "itemId", "type", "label", "amount", "createdAt"},
		itemRows); err != nil {
		return err
	}
	if err := writeCSV(zw, root+"data/payments.csv",
		[]string{"installmentId", "paymentId", "amount", "paidAt", "method", "collectedBy", "withoutReceipt", "receiptName", "receiptPath"},
		paymentRows); err != nil {
		return err
	}
	if err := writeCSV(zw, root+"data/notifications_log.csv",
		[]string{"installmentId", "at", "dayKey", "type", "channel", "audience", "recipient"},
		notificationRows); err != nil {
		return err
	}
	if err := writeCSV(zw, root+"data/events.csv",
		[]string{"eventId", "type", "at", "detail", "tags", "installmentId", "createdBy", "attachmentCount"},
		eventRows); err != nil {
		return err
	}

	attachmentCount := 0
	for i, res := range fetched {
		if res.err != nil {
			missing = append(missing, jobs[i].missing)
			continue
		}
		if err := writeEntry(zw, root+jobs[i].dest, res.data); err != nil {
			return err
		}
		if !(hasPDFJob && i == 0) {
			attachmentCount++
		}
	}
	if attachmentCount == 0 {
		missing = append(missing, "attachments (none)")
	}

	if len(missing) > 0 {
		var buf bytes.Buffer
		buf.WriteString("Missing or unfetched items:\n")
		for _, m := range missing {
			buf.WriteString("- " + m + "\n")
		}
		if err := writeEntry(zw, root+"README.txt", buf.Bytes()); err != nil {
			return err
		}
	}

	return zw.Close()
}

// =============================================================================
// ATTACHMENT FETCHING - bounded fan-out, ordered results
// =============================================================================

type fetchJob struct {
	path    string
	dest    string
	missing string
}

type fetchResult struct {
	data []byte
	err  error
}

// fetchAll runs the jobs over a bounded worker pool. Results land in
// job order, so archive assembly stays deterministic however the
// fetches interleave.
func (a *Aggregator) fetchAll(ctx context.Context, jobs []fetchJob) []fetchResult {
	results := make([]fetchResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := a.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = fetchOne(ctx, a.Blobs, jobs[i].path)
			}
		}()
	}
	for i := range jobs {
		indices <- i
	}
	close(indices)
	wg.Wait()
	return results
}

func fetchOne(ctx context.Context, storage blob.Storage, path string) fetchResult {
	rc, err := storage.Fetch(ctx, path)
	if err != nil {
		return fetchResult{err: fmt.Errorf("%w: %v", ledger.ErrExternalResource, err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fetchResult{err: fmt.Errorf("%w: %v", ledger.ErrExternalResource, err)}
	}
	return fetchResult{data: data}
}

// =============================================================================
// ARCHIVE HELPERS
// =============================================================================

// writeEntry adds a zip entry with a fixed timestamp so an unchanged
// ledger exports to identical bytes.
func writeEntry(zw *zip.Writer, name string, data []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Unix(0, 0).UTC(),
	}
	f, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// writeCSV renders header+rows; encoding/csv quotes any field holding
// a delimiter, quote, or newline.
func writeCSV(zw *zip.Writer, name string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return writeEntry(zw, name, buf.Bytes())
}

// contractDoc shapes the snapshot for data/contract.json.
func contractDoc(c *ledger.Contract) map[string]any {
	doc := map[string]any{
		"id": c.ID,
		"property": map[string]string{
			"title":   c.Property.Title,
			"address": c.Property.Address,
		},
		"tenant": map[string]string{
			"fullName": c.Tenant.FullName,
			"email":    c.Tenant.Email,
			"whatsapp": c.Tenant.WhatsApp,
		},
		"owner":      map[string]string{"fullName": c.Owner.FullName},
		"startDate":  c.Start.String(),
		"endDate":    c.End.String(),
		"dueDay":     c.DueDay,
		"rentAmount": c.RentAmount.String(),
		"notifications": map[string]bool{
			"enabled": c.Notify.Enabled,
		},
	}
	if c.PDF != nil {
		doc["pdf"] = map[string]string{"name": c.PDF.Name, "path": c.PDF.Path}
	}
	return doc
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func safeFilename(name string) string {
	return unsafeFilename.ReplaceAllString(name, "_")
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += "|"
		}
		out += t
	}
	return out
}
