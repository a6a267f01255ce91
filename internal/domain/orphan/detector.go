// Package orphan provides detection of inventory units that have lost
// their link to a supplier transaction.
package orphan

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stocksync/internal/core/id"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
)

// Class tags the kind of broken link.
type Class string

const (
	// ClassNoSupplier: the unit has no supplier at all.
	ClassNoSupplier Class = "no_supplier"

	// ClassNoTransaction: the unit has a supplier but no transaction item
	// references its id.
	ClassNoTransaction Class = "no_transaction"
)

// DefaultCutoff is how far back the scan looks when no date is given.
const DefaultCutoff = 30 * 24 * time.Hour

// Unit is one orphaned unit with the context an operator needs to repair it.
type Unit struct {
	UnitID       id.ID  `db:"unit_id" json:"unitId"`
	ProductID    id.ID  `db:"product_id" json:"productId"`
	Brand        string `db:"brand" json:"brand"`
	Model        string `db:"model" json:"model"`
	SerialNumber string `db:"serial_number" json:"serialNumber"`

	Price         decimal.NullDecimal `db:"price" json:"price"`
	PurchasePrice decimal.NullDecimal `db:"purchase_price" json:"purchasePrice"`

	SupplierID   *id.ID `db:"supplier_id" json:"supplierId,omitempty"`
	SupplierName string `db:"supplier_name" json:"supplierName,omitempty"`

	Class Class `db:"-" json:"class"`
}

// Report is the result of one scan. The two classes are disjoint by
// construction: a unit without a supplier is never checked for transaction
// coverage.
type Report struct {
	NoSupplier    []Unit    `json:"noSupplier"`
	NoTransaction []Unit    `json:"noTransaction"`
	Cutoff        time.Time `json:"cutoff"`
	ScannedAt     time.Time `json:"scannedAt"`
}

// Total returns the number of orphans found.
func (r Report) Total() int {
	return len(r.NoSupplier) + len(r.NoTransaction)
}

// Repository defines the scan queries.
type Repository interface {
	// UnitsWithoutSupplier returns units with supplier_id IS NULL created
	// since the cutoff, joined with product and price context.
	UnitsWithoutSupplier(ctx context.Context, since time.Time) ([]Unit, error)

	// UnitsWithSupplier returns units with a non-null supplier_id created
	// since the cutoff; these are the candidates for the containment check.
	UnitsWithSupplier(ctx context.Context, since time.Time) ([]Unit, error)
}

// Detector scans for orphaned units.
type Detector struct {
	repo         Repository
	transactions transaction.Repository
	log          *logger.Logger
}

// NewDetector creates an orphan detector.
func NewDetector(repo Repository, transactions transaction.Repository, log *logger.Logger) *Detector {
	return &Detector{
		repo:         repo,
		transactions: transactions,
		log:          log.WithComponent("orphan"),
	}
}

// FindOrphans scans units created since the cutoff (30 days when nil) and
// classifies them. Candidates with a supplier get one containment lookup
// each; this is a diagnostic path, not a hot path, so per-unit queries are
// acceptable.
func (d *Detector) FindOrphans(ctx context.Context, since *time.Time) (Report, error) {
	cutoff := time.Now().UTC().Add(-DefaultCutoff)
	if since != nil {
		cutoff = *since
	}

	report := Report{
		Cutoff:    cutoff,
		ScannedAt: time.Now().UTC(),
	}

	noSupplier, err := d.repo.UnitsWithoutSupplier(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("scan units without supplier: %w", err)
	}
	for i := range noSupplier {
		noSupplier[i].Class = ClassNoSupplier
	}
	report.NoSupplier = noSupplier

	candidates, err := d.repo.UnitsWithSupplier(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("scan supplier-linked units: %w", err)
	}

	for _, unit := range candidates {
		covered, err := d.transactions.AnyItemReferencesUnit(ctx, unit.UnitID)
		if err != nil {
			d.log.Errorw("containment check failed, skipping unit",
				"unit_id", unit.UnitID,
				"error", err,
			)
			continue
		}
		if covered {
			continue
		}
		unit.Class = ClassNoTransaction
		report.NoTransaction = append(report.NoTransaction, unit)
	}

	d.log.Infow("orphan scan finished",
		"cutoff", cutoff,
		"no_supplier", len(report.NoSupplier),
		"no_transaction", len(report.NoTransaction),
	)
	return report, nil
}
