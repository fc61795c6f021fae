package store

import (
	"context"
	"database/sql"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

const contactColumns = "id, first_name, last_name, email, phone, company_id, owner_id, created_at"

// SearchContacts matches query against first name, last name and email.
func (s *SQLiteStore) SearchContacts(ctx context.Context, query string, limit int) (out []domain.Contact, err error) {
	ctx, end := startSpan(ctx, "search_contacts")
	defer func() { end(err) }()

	p := likePattern(query)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+contactColumns+` FROM contacts
		 WHERE first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'
		 ORDER BY id LIMIT ?`,
		p, p, p, limit,
	)
	if err != nil {
		return nil, storeErr("Store.SearchContacts", err)
	}
	defer rows.Close()

	out = []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, storeErr("Store.SearchContacts", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateContact inserts c and returns it with its id and timestamp.
func (s *SQLiteStore) CreateContact(ctx context.Context, c domain.Contact) (_ domain.Contact, err error) {
	ctx, end := startSpan(ctx, "create_contact")
	defer func() { end(err) }()

	if c.CompanyID != nil {
		if err := s.mustExist(ctx, domain.EntityCompany, *c.CompanyID); err != nil {
			return domain.Contact{}, err
		}
	}

	var created string
	c.CreatedAt, created = s.stamp(c.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (first_name, last_name, email, phone, company_id, owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FirstName, c.LastName, c.Email, c.Phone, nullInt(c.CompanyID), c.OwnerID, created,
	)
	if err != nil {
		return domain.Contact{}, storeErr("Store.CreateContact", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Contact{}, storeErr("Store.CreateContact", err)
	}
	return c, nil
}

// FindCompanies returns companies whose name contains name, case-insensitively.
func (s *SQLiteStore) FindCompanies(ctx context.Context, name string, limit int) (out []domain.Company, err error) {
	ctx, end := startSpan(ctx, "find_companies")
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at FROM companies
		 WHERE name LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likePattern(name), limit,
	)
	if err != nil {
		return nil, storeErr("Store.FindCompanies", err)
	}
	defer rows.Close()

	out = []domain.Company{}
	for rows.Next() {
		var c domain.Company
		var created string
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID, &created); err != nil {
			return nil, storeErr("Store.FindCompanies", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCompany inserts c.
func (s *SQLiteStore) CreateCompany(ctx context.Context, c domain.Company) (_ domain.Company, err error) {
	ctx, end := startSpan(ctx, "create_company")
	defer func() { end(err) }()

	var created string
	c.CreatedAt, created = s.stamp(c.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO companies (name, owner_id, created_at) VALUES (?, ?, ?)",
		c.Name, c.OwnerID, created,
	)
	if err != nil {
		return domain.Company{}, storeErr("Store.CreateCompany", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Company{}, storeErr("Store.CreateCompany", err)
	}
	return c, nil
}

func scanContact(row scanner) (domain.Contact, error) {
	var c domain.Contact
	var company sql.NullInt64
	var created string
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &company, &c.OwnerID, &created); err != nil {
		return domain.Contact{}, err
	}
	c.CompanyID = intPtr(company)
	c.CreatedAt = parseTime(created)
	return c, nil
}
