package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, store_id, name, description, category, price, prep_time,
	image_url, is_available, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.StoreID, &p.Name, &p.Description, &p.Category, &p.Price, &p.PrepTime,
		&p.ImageURL, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

type GetProductsForOrderParams struct {
	IDs     []uuid.UUID
	StoreID uuid.UUID
}

// GetProductsForOrderRow carries the catalog data the order core needs:
// a price to snapshot and a prep time (defaulted to 5 minutes when unset).
type GetProductsForOrderRow struct {
	ID          uuid.UUID
	Name        string
	Price       pgtype.Numeric
	PrepTime    int32
	IsAvailable bool
}

func (q *Queries) GetProductsForOrder(ctx context.Context, arg GetProductsForOrderParams) ([]GetProductsForOrderRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, price, COALESCE(prep_time, 5)::int, is_available
		FROM products
		WHERE id = ANY($1) AND store_id = $2`,
		arg.IDs, arg.StoreID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []GetProductsForOrderRow
	for rows.Next() {
		var p GetProductsForOrderRow
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.PrepTime, &p.IsAvailable); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type CreateProductParams struct {
	StoreID     uuid.UUID
	Name        string
	Description pgtype.Text
	Category    pgtype.Text
	Price       pgtype.Numeric
	PrepTime    pgtype.Int4
	ImageURL    pgtype.Text
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (store_id, name, description, category, price, prep_time, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+productColumns,
		arg.StoreID, arg.Name, arg.Description, arg.Category, arg.Price, arg.PrepTime, arg.ImageURL,
	)
	return scanProduct(row)
}

type GetProductParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND store_id = $2`,
		arg.ID, arg.StoreID,
	)
	return scanProduct(row)
}

func (q *Queries) ListProducts(ctx context.Context, storeID uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE store_id = $1 ORDER BY name`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type UpdateProductParams struct {
	ID          uuid.UUID
	StoreID     uuid.UUID
	Name        string
	Description pgtype.Text
	Category    pgtype.Text
	Price       pgtype.Numeric
	PrepTime    pgtype.Int4
	ImageURL    pgtype.Text
	IsAvailable bool
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products
		SET name = $3, description = $4, category = $5, price = $6, prep_time = $7,
		    image_url = $8, is_available = $9, updated_at = now()
		WHERE id = $1 AND store_id = $2
		RETURNING `+productColumns,
		arg.ID, arg.StoreID, arg.Name, arg.Description, arg.Category, arg.Price,
		arg.PrepTime, arg.ImageURL, arg.IsAvailable,
	)
	return scanProduct(row)
}

type DeleteProductParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) DeleteProduct(ctx context.Context, arg DeleteProductParams) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM products WHERE id = $1 AND store_id = $2`,
		arg.ID, arg.StoreID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// --- Tables ---

const tableColumns = `id, store_id, number, qr_code, location, is_active, created_at`

func scanTable(row pgx.Row) (Table, error) {
	var t Table
	err := row.Scan(&t.ID, &t.StoreID, &t.Number, &t.QRCode, &t.Location, &t.IsActive, &t.CreatedAt)
	return t, err
}

type CreateTableParams struct {
	StoreID  uuid.UUID
	Number   string
	QRCode   string
	Location pgtype.Text
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO tables (store_id, number, qr_code, location)
		VALUES ($1, $2, $3, $4)
		RETURNING `+tableColumns,
		arg.StoreID, arg.Number, arg.QRCode, arg.Location,
	)
	return scanTable(row)
}

type GetTableParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (Table, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE id = $1 AND store_id = $2`,
		arg.ID, arg.StoreID,
	)
	return scanTable(row)
}

type GetTableByQRCodeParams struct {
	QRCode  string
	StoreID uuid.UUID
}

func (q *Queries) GetTableByQRCode(ctx context.Context, arg GetTableByQRCodeParams) (Table, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE qr_code = $1 AND store_id = $2`,
		arg.QRCode, arg.StoreID,
	)
	return scanTable(row)
}

func (q *Queries) ListTables(ctx context.Context, storeID uuid.UUID) ([]Table, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE store_id = $1 ORDER BY number`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// --- Stores ---

func (q *Queries) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	row := q.db.QueryRow(ctx,
		`SELECT id, name, address, phone, created_at, updated_at FROM stores WHERE id = $1`,
		id,
	)
	var s Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

type UpdateStoreParams struct {
	ID      uuid.UUID
	Name    string
	Address pgtype.Text
	Phone   pgtype.Text
}

func (q *Queries) UpdateStore(ctx context.Context, arg UpdateStoreParams) (Store, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE stores
		SET name = $2, address = $3, phone = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, address, phone, created_at, updated_at`,
		arg.ID, arg.Name, arg.Address, arg.Phone,
	)
	var s Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
