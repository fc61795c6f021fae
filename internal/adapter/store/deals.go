package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

var errNoRows = sql.ErrNoRows

const dealColumns = `id, name, company_id, contact_id, vendor_company_id, deal_kind, stage,
	amount, cost, expected_closing_date, owner_id, created_at`

// CreateDeal inserts d. Company, contact and vendor references must exist.
func (s *SQLiteStore) CreateDeal(ctx context.Context, d domain.Deal) (_ domain.Deal, err error) {
	ctx, end := startSpan(ctx, "create_deal")
	defer func() { end(err) }()

	if err := s.mustExist(ctx, domain.EntityCompany, d.CompanyID); err != nil {
		return domain.Deal{}, err
	}
	if d.ContactID != nil {
		if err := s.mustExist(ctx, domain.EntityContact, *d.ContactID); err != nil {
			return domain.Deal{}, err
		}
	}
	if d.VendorCompanyID != nil {
		if err := s.mustExist(ctx, domain.EntityCompany, *d.VendorCompanyID); err != nil {
			return domain.Deal{}, err
		}
	}

	var created string
	d.CreatedAt, created = s.stamp(d.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (name, company_id, contact_id, vendor_company_id, deal_kind, stage,
			amount, cost, expected_closing_date, owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.CompanyID, nullInt(d.ContactID), nullInt(d.VendorCompanyID), string(d.Kind), d.Stage,
		nullFloat(d.Amount), nullFloat(d.Cost), d.ExpectedClosingDate, d.OwnerID, created,
	)
	if err != nil {
		return domain.Deal{}, storeErr("Store.CreateDeal", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Deal{}, storeErr("Store.CreateDeal", err)
	}
	return d, nil
}

// GetDeal loads a deal by id.
func (s *SQLiteStore) GetDeal(ctx context.Context, id int64) (_ domain.Deal, err error) {
	ctx, end := startSpan(ctx, "get_deal")
	defer func() { end(err) }()

	d, err := scanDeal(s.db.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = ?", id))
	if errors.Is(err, errNoRows) {
		return domain.Deal{}, domain.NewSubSystemError("deal", "Store.GetDeal", domain.ErrNotFound,
			fmt.Sprintf("deal %d does not exist", id))
	}
	if err != nil {
		return domain.Deal{}, storeErr("Store.GetDeal", err)
	}
	return d, nil
}

// UpdateDealStage sets the stage of an existing deal and returns the updated row.
func (s *SQLiteStore) UpdateDealStage(ctx context.Context, id int64, stage string) (_ domain.Deal, err error) {
	ctx, end := startSpan(ctx, "update_deal_stage")
	defer func() { end(err) }()

	res, err := s.db.ExecContext(ctx, "UPDATE deals SET stage = ? WHERE id = ?", stage, id)
	if err != nil {
		return domain.Deal{}, storeErr("Store.UpdateDealStage", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Deal{}, domain.NewSubSystemError("deal", "Store.UpdateDealStage", domain.ErrNotFound,
			fmt.Sprintf("deal %d does not exist", id))
	}
	return s.GetDeal(ctx, id)
}

// DealsCreatedBetween returns deals with from <= created_at < to.
func (s *SQLiteStore) DealsCreatedBetween(ctx context.Context, from, to time.Time) (out []domain.Deal, err error) {
	ctx, end := startSpan(ctx, "deals_created_between")
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+dealColumns+" FROM deals WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id",
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, storeErr("Store.DealsCreatedBetween", err)
	}
	defer rows.Close()

	out = []domain.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, storeErr("Store.DealsCreatedBetween", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeal(row scanner) (domain.Deal, error) {
	var d domain.Deal
	var contact, vendor sql.NullInt64
	var amount, cost sql.NullFloat64
	var kind, created string
	if err := row.Scan(&d.ID, &d.Name, &d.CompanyID, &contact, &vendor, &kind, &d.Stage,
		&amount, &cost, &d.ExpectedClosingDate, &d.OwnerID, &created); err != nil {
		return domain.Deal{}, err
	}
	d.ContactID = intPtr(contact)
	d.VendorCompanyID = intPtr(vendor)
	d.Kind = domain.DealKind(kind)
	d.Amount = floatPtr(amount)
	d.Cost = floatPtr(cost)
	d.CreatedAt = parseTime(created)
	return d, nil
}
