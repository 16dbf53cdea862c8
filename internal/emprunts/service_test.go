package emprunts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblio-backend/internal/documents"
	"biblio-backend/internal/emprunts"
	"biblio-backend/internal/membres"
	"biblio-backend/internal/platform/apperr"
	"biblio-backend/internal/platform/db/dbtest"
)

func int64Ptr(i int64) *int64 { return &i }
func strPtr(s string) *string { return &s }

type fixture struct {
	conn *sql.DB
	docs *documents.Service
	mems *membres.Service
	emps *emprunts.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	dbtest.Reset(t, conn)
	return &fixture{
		conn: conn,
		docs: documents.NewService(conn),
		mems: membres.NewService(conn),
		emps: emprunts.NewService(conn),
	}
}

func (f *fixture) makeDoc(t *testing.T, titre string, copies int) *documents.DocumentResponse {
	t.Helper()
	doc, err := f.docs.CreateDocument(context.Background(), documents.CreateDocumentRequest{
		Titre:         titre,
		NbExemplaires: copies,
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) makeMembre(t *testing.T, nom, prenom string) int64 {
	t.Helper()
	m, err := f.mems.Create(context.Background(), membres.CreateMembreRequest{Nom: nom, Prenom: prenom})
	require.NoError(t, err)
	return m.ID
}

func (f *fixture) copyAvailable(t *testing.T, id int64) bool {
	t.Helper()
	var avail bool
	err := f.conn.QueryRow(`SELECT disponible FROM exemplaires WHERE id = ?`, id).Scan(&avail)
	require.NoError(t, err)
	return avail
}

func (f *fixture) docAvailable(t *testing.T, id int64) bool {
	t.Helper()
	var avail bool
	err := f.conn.QueryRow(`SELECT disponible FROM documents WHERE id = ?`, id).Scan(&avail)
	require.NoError(t, err)
	return avail
}

func TestCreateEmpruntsTakeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Le Petit Prince", 2)
	membreID := f.makeMembre(t, "Dupont", "Émilie")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	loan := resp.Emprunts[0]
	assert.Equal(t, "Le Petit Prince", loan.Document)
	assert.Equal(t, "En cours", loan.Status)
	assert.NotNil(t, loan.BatchCode)
	assert.Len(t, loan.Exemplaires, 2)

	// every copy reserved, the title follows
	for _, e := range doc.Exemplaires {
		assert.False(t, f.copyAvailable(t, e.ID))
	}
	assert.False(t, f.docAvailable(t, doc.ID))
}

func TestCreateEmpruntsExplicitCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Germinal", 3)
	membreID := f.makeMembre(t, "Martin", "Jean")

	picked := []int64{doc.Exemplaires[0].ID, doc.Exemplaires[2].ID}
	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		ExemplaireIDs:    picked,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	assert.False(t, f.copyAvailable(t, picked[0]))
	assert.False(t, f.copyAvailable(t, picked[1]))
	assert.True(t, f.copyAvailable(t, doc.Exemplaires[1].ID))
	// one copy left, the title stays available
	assert.True(t, f.docAvailable(t, doc.ID))

	// deleting the loan restores everything
	require.NoError(t, f.emps.DeleteEmprunt(ctx, resp.Emprunts[0].ID))
	assert.True(t, f.copyAvailable(t, picked[0]))
	assert.True(t, f.copyAvailable(t, picked[1]))
	assert.True(t, f.docAvailable(t, doc.ID))
}

func TestCreateEmpruntsInvalidDateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Dates", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	_, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-15",
		DateRetourPrevue: "2026-02-01",
	})
	assert.Equal(t, apperr.CodeInvalidDateRange, apperr.CodeOf(err))

	// nothing was created, nothing was reserved
	loans, err := f.emps.ListEmprunts(ctx)
	require.NoError(t, err)
	assert.Empty(t, loans)
	assert.True(t, f.copyAvailable(t, doc.Exemplaires[0].ID))
}

func TestCreateEmpruntsEmptyRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.emps.CreateEmprunts(context.Background(), emprunts.CreateEmpruntsRequest{
		EmprunteurLabel:  strPtr("Dupont"),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeEmptyRequest, apperr.CodeOf(err))
}

func TestCreateEmpruntsArchivedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Archivé", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	_, err := f.docs.UpdateDocument(ctx, doc.ID, documents.UpdateDocumentRequest{
		Titre:      "Archivé",
		IsArchived: func() *bool { b := true; return &b }(),
	})
	require.NoError(t, err)

	_, err = f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeDocumentArchived, apperr.CodeOf(err))
}

func TestCreateEmpruntsNoCopiesAvailable(t *testing.T) {
	f := newFixture(t)

	doc := f.makeDoc(t, "Vide", 0)
	membreID := f.makeMembre(t, "Dupont", "")

	_, err := f.emps.CreateEmprunts(context.Background(), emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeNoCopiesAvailable, apperr.CodeOf(err))
}

func TestCreateEmpruntsNoCopiesSelected(t *testing.T) {
	f := newFixture(t)

	doc := f.makeDoc(t, "Choix", 2)
	membreID := f.makeMembre(t, "Dupont", "")

	_, err := f.emps.CreateEmprunts(context.Background(), emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeNoCopiesSelected, apperr.CodeOf(err))
}

func TestCreateEmpruntsMultiEntrySharesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc1 := f.makeDoc(t, "Tome 1", 1)
	doc2 := f.makeDoc(t, "Tome 2", 1)
	membreID := f.makeMembre(t, "Dupont", "Émilie")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		Entries: []emprunts.EmpruntEntry{
			{DocumentID: int64Ptr(doc1.ID), TakeAllAvailable: true},
			{DocumentID: int64Ptr(doc2.ID), TakeAllAvailable: true},
		},
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)

	// one loan row per document, all linked by the same batch code
	require.NotNil(t, resp.Emprunts[0].BatchCode)
	require.NotNil(t, resp.Emprunts[1].BatchCode)
	assert.Equal(t, *resp.Emprunts[0].BatchCode, *resp.Emprunts[1].BatchCode)
	assert.NotEqual(t, resp.Emprunts[0].DocumentID, resp.Emprunts[1].DocumentID)
}

func TestCreateEmpruntsResolvesDocumentByLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "L'Étranger", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentLabel:    strPtr("l'etranger"),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, resp.Emprunts[0].DocumentID)

	// unknown label
	_, err = f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentLabel:    strPtr("inconnu"),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCreateEmpruntsResolvesBorrowerByLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Candide", 2)

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		ExemplaireIDs:    []int64{doc.Exemplaires[0].ID},
		EmprunteurLabel:  strPtr("Dupont Émilie"),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	firstBorrower := resp.Emprunts[0].EmprunteurID

	// accent variant of the same label reuses the membre
	resp, err = f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		ExemplaireIDs:    []int64{doc.Exemplaires[1].ID},
		EmprunteurLabel:  strPtr("dupont EMILIE"),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	assert.Equal(t, firstBorrower, resp.Emprunts[0].EmprunteurID)

	var count int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM membres`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateEmpruntsConcurrentSingleCopy(t *testing.T) {
	f := newFixture(t)

	doc := f.makeDoc(t, "Exemplaire unique", 1)
	membreID := f.makeMembre(t, "Dupont", "")
	copyID := doc.Exemplaires[0].ID

	req := emprunts.CreateEmpruntsRequest{
		ExemplaireIDs:    []int64{copyID},
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.emps.CreateEmprunts(context.Background(), req)
		}(i)
	}
	wg.Wait()

	// exactly one side wins; the loser fails the under-lock re-check
	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.Equal(t, apperr.CodeCopiesNoLongerAvailable, apperr.CodeOf(err))
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	loans, err := f.emps.ListEmprunts(context.Background())
	require.NoError(t, err)
	assert.Len(t, loans, 1)
	assert.False(t, f.copyAvailable(t, copyID))
}

func TestCreateEmpruntsDuplicateCopyAcrossEntries(t *testing.T) {
	f := newFixture(t)

	doc := f.makeDoc(t, "Partagé", 1)
	membreID := f.makeMembre(t, "Dupont", "")
	copyID := doc.Exemplaires[0].ID

	_, err := f.emps.CreateEmprunts(context.Background(), emprunts.CreateEmpruntsRequest{
		Entries: []emprunts.EmpruntEntry{
			{ExemplaireIDs: []int64{copyID}},
			{ExemplaireIDs: []int64{copyID}},
		},
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestMarkReturnedIsRepeatSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Retour", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	loanID := resp.Emprunts[0].ID
	require.False(t, f.docAvailable(t, doc.ID))

	loan, err := f.emps.MarkReturned(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, "Retourné", loan.Status)
	assert.NotNil(t, loan.DateRetourReelle)
	assert.True(t, f.copyAvailable(t, doc.Exemplaires[0].ID))
	assert.True(t, f.docAvailable(t, doc.ID))

	// second call re-stamps the date, nothing else changes
	again, err := f.emps.MarkReturned(ctx, loanID)
	require.NoError(t, err)
	assert.Equal(t, "Retourné", again.Status)
	assert.True(t, f.copyAvailable(t, doc.Exemplaires[0].ID))
}

func TestUpdateEmpruntReopenReservesCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Rouvert", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)
	loanID := resp.Emprunts[0].ID

	_, err = f.emps.MarkReturned(ctx, loanID)
	require.NoError(t, err)
	require.True(t, f.copyAvailable(t, doc.Exemplaires[0].ID))

	// clearing the return date reopens the loan and re-reserves the copy
	loan, err := f.emps.UpdateEmprunt(ctx, loanID, emprunts.UpdateEmpruntRequest{
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
		DateRetourReelle: strPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "En cours", loan.Status)
	assert.Nil(t, loan.DateRetourReelle)
	assert.False(t, f.copyAvailable(t, doc.Exemplaires[0].ID))
	assert.False(t, f.docAvailable(t, doc.ID))
}

func TestUpdateEmpruntInvalidDateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.makeDoc(t, "Bornes", 1)
	membreID := f.makeMembre(t, "Dupont", "")

	resp, err := f.emps.CreateEmprunts(ctx, emprunts.CreateEmpruntsRequest{
		DocumentID:       int64Ptr(doc.ID),
		TakeAllAvailable: true,
		EmprunteurID:     int64Ptr(membreID),
		DateEmprunt:      "2026-02-01",
		DateRetourPrevue: "2026-02-15",
	})
	require.NoError(t, err)

	_, err = f.emps.UpdateEmprunt(ctx, resp.Emprunts[0].ID, emprunts.UpdateEmpruntRequest{
		DateEmprunt:      "2026-02-15",
		DateRetourPrevue: "2026-02-01",
	})
	assert.Equal(t, apperr.CodeInvalidDateRange, apperr.CodeOf(err))
}

func TestOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avail := f.makeDoc(t, "Disponible", 1)
	f.makeDoc(t, "Épuisé", 0)
	activeID := f.makeMembre(t, "Dupont", "Émilie")
	inactiveID := f.makeMembre(t, "Martin", "")
	_, err := f.mems.ToggleActive(ctx, inactiveID)
	require.NoError(t, err)

	opts, err := f.emps.Options(ctx)
	require.NoError(t, err)

	require.Len(t, opts.Documents, 1)
	assert.Equal(t, avail.ID, opts.Documents[0].ID)

	require.Len(t, opts.Membres, 1)
	assert.Equal(t, activeID, opts.Membres[0].ID)
	assert.Equal(t, "Dupont Émilie", opts.Membres[0].Label)
}
