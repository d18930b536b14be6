package service

import (
	"stormscout/internal/core/domain/models"
)

// Reconcile returns the fetched reports whose rd_id is not in known,
// preserving fetch order. Records without an rd_id cannot be tracked across
// runs and are dropped.
func Reconcile(fetched []models.Report, known map[string]struct{}) []models.Report {
	var fresh []models.Report
	for _, r := range fetched {
		if r.RdID == "" {
			continue
		}
		if _, seen := known[r.RdID]; seen {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh
}
