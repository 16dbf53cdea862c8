package emprunts

import (
	"context"
	"fmt"
	"log"
	"time"

	"biblio-backend/internal/notifications"
	"biblio-backend/internal/platform/db"
)

// RunOverdueScan marks open, past-due loans late and notifies each one exactly
// once. Each loan commits in its own short transaction so a failure on one
// row never blocks the rest, and a loan returned between the query and the
// write is skipped by the in-transaction re-check.
func (s *Service) RunOverdueScan(ctx context.Context, now time.Time) (ScanReport, error) {
	candidates, err := s.store.listOverdueCandidates(ctx, now)
	if err != nil {
		return ScanReport{}, err
	}

	report := ScanReport{Scanned: len(candidates)}
	for _, c := range candidates {
		notified, err := s.processOverdueLoan(ctx, c)
		if err != nil {
			log.Printf("[WARN] overdue scan: emprunt %d: %v", c.ID, err)
			continue
		}
		if notified {
			report.Notified++
		}
	}
	return report, nil
}

func (s *Service) processOverdueLoan(ctx context.Context, c overdueCandidate) (notified bool, err error) {
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		e, err := s.store.lockEmprunt(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		// returned since the candidate query ran
		if e.DateRetour.Valid {
			return nil
		}

		dirty := false
		if !e.EnRetard {
			e.EnRetard = true
			dirty = true
		}
		if !e.NotifieRetard {
			n := &notifications.Notification{
				EmpruntID: e.ID,
				Message: fmt.Sprintf(
					"L'emprunt #%d du document %s pour %s %s est en retard depuis le %s.",
					e.ID, c.DocumentTitre, c.EmprunteurPrenom, c.EmprunteurNom,
					c.DateRetourPrevue.Format("02/01/2006")),
			}
			if err := s.notifStore.Insert(ctx, tx, n); err != nil {
				return err
			}
			e.NotifieRetard = true
			dirty = true
			notified = true
		}

		if dirty {
			return s.store.updateEmprunt(ctx, tx, e)
		}
		return nil
	})
	if err != nil {
		notified = false
	}
	return notified, err
}

// StartOverdueTicker runs the scan on a fixed interval until ctx is canceled.
func (s *Service) StartOverdueTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.RunOverdueScan(ctx, s.clock.Now())
			if err != nil {
				log.Printf("[ERROR] overdue scan failed: %v", err)
				continue
			}
			if report.Scanned > 0 {
				log.Printf("[INFO] overdue scan: %d scanned, %d notified", report.Scanned, report.Notified)
			}
		}
	}
}
