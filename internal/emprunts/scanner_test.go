package emprunts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblio-backend/internal/emprunts"
	"biblio-backend/internal/notifications"
)

// openLoan opens a loan on the document's copies with the given dates.
func (f *fixture) openLoan(t *testing.T, docID, membreID int64, dateEmprunt, dateRetourPrevue string) int64 {
	t.Helper()
	resp, err := f.emps.CreateEmprunts(context.Background(), emprunts.CreateEmpruntsRequest{
		DocumentID:       &docID,
		TakeAllAvailable: true,
		EmprunteurID:     &membreID,
		DateEmprunt:      dateEmprunt,
		DateRetourPrevue: dateRetourPrevue,
	})
	require.NoError(t, err)
	require.Len(t, resp.Emprunts, 1)
	return resp.Emprunts[0].ID
}

func TestOverdueScanNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Les Misérables", 1)
	membreID := f.makeMembre(t, "Dupont", "Émilie")
	loanID := f.openLoan(t, doc.ID, membreID, "2026-01-05", "2026-01-19")

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	report, err := f.emps.RunOverdueScan(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Notified)

	loan, err := f.emps.GetEmprunt(ctx, loanID)
	require.NoError(t, err)
	assert.True(t, loan.EnRetard)
	assert.True(t, loan.NotifieRetard)
	assert.Equal(t, "En retard", loan.Status)

	notifStore := notifications.NewStore(f.conn)
	count, err := notifStore.CountByEmprunt(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	items, err := notifStore.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// a second sweep scans the loan again but stays silent
	report, err = f.emps.RunOverdueScan(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Notified)

	count, err = notifStore.CountByEmprunt(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOverdueScanMessageFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Candide", 1)
	membreID := f.makeMembre(t, "Martin", "Jean")
	loanID := f.openLoan(t, doc.ID, membreID, "2026-01-05", "2026-01-19")

	_, err := f.emps.RunOverdueScan(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var msg string
	require.NoError(t, f.conn.QueryRow(`SELECT message FROM notifications WHERE emprunt_id = ?`, loanID).Scan(&msg))
	assert.Contains(t, msg, "Candide")
	assert.Contains(t, msg, "Jean Martin")
	assert.Contains(t, msg, "en retard depuis le 19/01/2026")
}

func TestOverdueScanIgnoresOpenLoansNotYetDue(t *testing.T) {
	f := newFixture(t)

	doc := f.makeDoc(t, "À temps", 1)
	membreID := f.makeMembre(t, "Dupont", "")
	f.openLoan(t, doc.ID, membreID, "2026-01-05", "2026-03-01")

	report, err := f.emps.RunOverdueScan(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Notified)
}

func TestOverdueScanIgnoresReturnedLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Rendu", 1)
	membreID := f.makeMembre(t, "Dupont", "")
	loanID := f.openLoan(t, doc.ID, membreID, "2026-01-05", "2026-01-19")

	_, err := f.emps.MarkReturned(ctx, loanID)
	require.NoError(t, err)

	report, err := f.emps.RunOverdueScan(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
}

func TestOverdueScanAfterReturnAndReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Cycle", 1)
	membreID := f.makeMembre(t, "Dupont", "")
	loanID := f.openLoan(t, doc.ID, membreID, "2026-01-05", "2026-01-19")

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.emps.RunOverdueScan(ctx, now)
	require.NoError(t, err)

	// returning clears both flags
	loan, err := f.emps.MarkReturned(ctx, loanID)
	require.NoError(t, err)
	assert.False(t, loan.EnRetard)
	assert.False(t, loan.NotifieRetard)

	// reopening past due makes the loan eligible again
	loan, err = f.emps.UpdateEmprunt(ctx, loanID, emprunts.UpdateEmpruntRequest{
		DateEmprunt:      "2026-01-05",
		DateRetourPrevue: "2026-01-19",
		DateRetourReelle: strPtr(""),
	})
	require.NoError(t, err)
	require.Equal(t, "En cours", loan.Status)

	report, err := f.emps.RunOverdueScan(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Notified)

	count, err := notifications.NewStore(f.conn).CountByEmprunt(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
