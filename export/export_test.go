package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobranza/rent-ledger/blob"
	"github.com/cobranza/rent-ledger/export"
	"github.com/cobranza/rent-ledger/ledger"
	"github.com/cobranza/rent-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func amt(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// seedLedger builds a two installment contract with a payment, an
// agreement note, a notification entry, and an event with attachment.
func seedLedger(t *testing.T) (*store.Memory, *blob.Memory) {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()
	blobs := blob.NewMemory()

	contract := ledger.Contract{
		ID: "c1",
		Property: ledger.PropertySnapshot{
			Title:   "Depto 3B",
			Address: "Av. Rivadavia 1234",
		},
		Tenant: ledger.PartySnapshot{
			FullName: "Maria Lopez",
			Email:    "maria@example.com",
		},
		Owner:      ledger.PartySnapshot{FullName: "Carlos Diaz"},
		Start:      ledger.NewDate(2025, time.January, 1),
		End:        ledger.NewDate(2025, time.February, 28),
		DueDay:     10,
		RentAmount: amt("1000"),
		Notify:     ledger.NotificationConfig{Enabled: true},
		PDF:        &ledger.AttachmentRef{Name: "contrato.pdf", Path: "contracts/c1.pdf"},
	}
	require.NoError(t, repo.SaveContract(ctx, contract))

	clock := ledger.FixedClock{At: time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)}
	_, err := ledger.NewGenerator(repo, clock).Generate(ctx, "c1")
	require.NoError(t, err)

	engine := ledger.NewEngine(repo, clock)
	_, err = engine.RegisterPayment(ctx, "c1_2025-01", ledger.PaymentInput{
		Amount:      amt("400"),
		Method:      ledger.MethodEfectivo,
		CollectedBy: "user-1",
		Receipt:     &ledger.AttachmentRef{Name: "recibo enero.jpg", Path: "receipts/r1.jpg"},
	})
	require.NoError(t, err)

	require.NoError(t, repo.AppendNotificationLog(ctx, ledger.NotificationLogEntry{
		InstallmentID: "c1_2025-01",
		At:            time.Date(2025, time.January, 7, 9, 0, 0, 0, time.UTC),
		DayKey:        "2025-01-07",
		Type:          "REMINDER",
		Channel:       "email",
		Audience:      "tenant",
		Recipient:     "maria@example.com",
	}))

	require.NoError(t, repo.AppendContractEvent(ctx, ledger.ContractEvent{
		ID:         "ev-1",
		ContractID: "c1",
		Type:       "VISITA",
		At:         time.Date(2025, time.February, 1, 15, 0, 0, 0, time.UTC),
		Detail:     "Inspeccion, todo en orden",
		Tags:       []string{"inspeccion"},
		CreatedBy:  "user-1",
		Attachments: []ledger.AttachmentRef{
			{Name: "foto.jpg", Path: "events/ev-1/foto.jpg"},
		},
	}))

	put := func(path, content string) {
		require.NoError(t, blobs.Put(ctx, path, strings.NewReader(content), int64(len(content)), "application/octet-stream"))
	}
	put("contracts/c1.pdf", "%PDF-1.4 contrato")
	put("receipts/r1.jpg", "jpeg-receipt-bytes")
	put("events/ev-1/foto.jpg", "jpeg-photo-bytes")

	return repo, blobs
}

func exportArchive(t *testing.T, repo *store.Memory, blobs *blob.Memory) []byte {
	t.Helper()
	agg := &export.Aggregator{Repo: repo, Blobs: blobs, Concurrency: 2}
	var buf bytes.Buffer
	require.NoError(t, agg.Export(context.Background(), "c1", &buf))
	return buf.Bytes()
}

func readEntry(t *testing.T, archive []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			var sb strings.Builder
			_, err = io.Copy(&sb, rc)
			require.NoError(t, err)
			return sb.String()
		}
	}
	t.Fatalf("entry %s not found in archive", name)
	return ""
}

func entryNames(t *testing.T, archive []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

// =============================================================================
// ARCHIVE CONTENT
// =============================================================================

func TestExport_ArchiveLayout(t *testing.T) {
	repo, blobs := seedLedger(t)
	archive := exportArchive(t, repo, blobs)

	names := entryNames(t, archive)
	assert.Contains(t, names, "expediente_c1/data/contract.json")
	assert.Contains(t, names, "expediente_c1/data/installments.csv")
	assert.Contains(t, names, "expediente_c1/data/items.csv")
	assert.Contains(t, names, "expediente_c1/data/payments.csv")
	assert.Contains(t, names, "expediente_c1/data/notifications_log.csv")
	assert.Contains(t, names, "expediente_c1/data/events.csv")
	assert.Contains(t, names, "expediente_c1/contrato.pdf")
	assert.NotContains(t, names, "expediente_c1/README.txt", "nothing missing, no README")

	// Receipt and event attachment under their prefixes.
	var receipt, eventAtt bool
	for _, n := range names {
		if strings.HasPrefix(n, "expediente_c1/attachments/payments/") && strings.HasSuffix(n, "_recibo_enero.jpg") {
			receipt = true
		}
		if n == "expediente_c1/attachments/events/ev-1_foto.jpg" {
			eventAtt = true
		}
	}
	assert.True(t, receipt, "receipt attachment placed with safe filename: %v", names)
	assert.True(t, eventAtt, "event attachment placed: %v", names)
}

func TestExport_InstallmentTable(t *testing.T) {
	repo, blobs := seedLedger(t)
	archive := exportArchive(t, repo, blobs)

	csv := readEntry(t, archive, "expediente_c1/data/installments.csv")
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3, "header plus two periods")

	assert.Equal(t, "installmentId,contractId,period,dueDate,status,total,paid,due", lines[0])
	assert.Equal(t, "c1_2025-01,c1,2025-01,2025-01-10,PARCIAL,1000,400,600", lines[1])
	assert.Equal(t, "c1_2025-02,c1,2025-02,2025-02-10,VENCIDA,1000,0,1000", lines[2])
}

func TestExport_PaymentAndEventTables(t *testing.T) {
	repo, blobs := seedLedger(t)
	archive := exportArchive(t, repo, blobs)

	payments := readEntry(t, archive, "expediente_c1/data/payments.csv")
	lines := strings.Split(strings.TrimSpace(payments), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "installmentId,paymentId,amount,paidAt,method,collectedBy,withoutReceipt,receiptName,receiptPath", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "c1_2025-01,"))
	assert.Contains(t, lines[1], ",400,")
	assert.Contains(t, lines[1], ",EFECTIVO,user-1,false,recibo enero.jpg,receipts/r1.jpg")

	events := readEntry(t, archive, "expediente_c1/data/events.csv")
	lines = strings.Split(strings.TrimSpace(events), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "eventId,type,at,detail,tags,installmentId,createdBy,attachmentCount", lines[0])
	assert.Contains(t, lines[1], "ev-1,VISITA,")
	assert.True(t, strings.HasSuffix(lines[1], ",1"), "attachment count column: %s", lines[1])
}

func TestExport_ContractJSON(t *testing.T) {
	repo, blobs := seedLedger(t)
	archive := exportArchive(t, repo, blobs)

	doc := readEntry(t, archive, "expediente_c1/data/contract.json")
	assert.Contains(t, doc, `"rentAmount": "1000"`)
	assert.Contains(t, doc, `"fullName": "Maria Lopez"`)
	assert.Contains(t, doc, `"dueDay": 10`)
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestExport_DeterministicAcrossRuns(t *testing.T) {
	// GIVEN: An unchanged ledger
	// WHEN: Exporting twice
	// THEN: Byte-identical archives

	repo, blobs := seedLedger(t)
	first := exportArchive(t, repo, blobs)
	second := exportArchive(t, repo, blobs)
	assert.Equal(t, first, second)
}

// =============================================================================
// DEGRADATION
// =============================================================================

func TestExport_MissingAttachmentsDegradeToReadme(t *testing.T) {
	// GIVEN: A receipt blob that fails to fetch
	// WHEN: Exporting
	// THEN: The archive still builds and README.txt lists the gap

	repo, blobs := seedLedger(t)
	blobs.FailPaths["receipts/r1.jpg"] = true

	archive := exportArchive(t, repo, blobs)
	readme := readEntry(t, archive, "expediente_c1/README.txt")
	assert.Contains(t, readme, "could not be fetched")

	// Tables are unaffected.
	payments := readEntry(t, archive, "expediente_c1/data/payments.csv")
	assert.Contains(t, payments, "receipts/r1.jpg")
}

func TestExport_NoPDFNoted(t *testing.T) {
	repo, blobs := seedLedger(t)
	ctx := context.Background()

	contract, err := repo.GetContract(ctx, "c1")
	require.NoError(t, err)
	c := *contract
	c.PDF = nil
	require.NoError(t, repo.SaveContract(ctx, c))

	archive := exportArchive(t, repo, blobs)
	names := entryNames(t, archive)
	assert.NotContains(t, names, "expediente_c1/contrato.pdf")

	readme := readEntry(t, archive, "expediente_c1/README.txt")
	assert.Contains(t, readme, "contrato.pdf")
}

func TestExport_UnknownContract(t *testing.T) {
	repo, blobs := seedLedger(t)
	agg := &export.Aggregator{Repo: repo, Blobs: blobs}

	var buf bytes.Buffer
	err := agg.Export(context.Background(), "missing", &buf)
	assert.True(t, ledger.IsNotFound(err))
}
