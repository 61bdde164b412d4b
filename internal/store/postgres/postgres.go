package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
	"github.com/JavierCodely/onticket-app-sub000/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.CatalogProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nombre, categoria, stock, stock_minimo, stock_maximo, precios
		FROM productos
		ORDER BY categoria, nombre
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.CatalogProduct, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.CatalogProduct, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nombre, categoria, stock, stock_minimo, stock_maximo, precios
		FROM productos
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (domain.CatalogProduct, error) {
	var product domain.CatalogProduct
	var pricesJSON []byte
	if err := r.Scan(&product.ID, &product.Name, &product.Category, &product.Stock, &product.MinStock, &product.MaxStock, &pricesJSON); err != nil {
		return domain.CatalogProduct{}, err
	}
	if err := json.Unmarshal(pricesJSON, &product.Prices); err != nil {
		return domain.CatalogProduct{}, err
	}
	return product, nil
}

func (s *Store) ListPromotions(ctx context.Context) ([]domain.CatalogPromotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, producto_id, nombre, precios, cantidad_minima, cantidad_maxima,
		       limite_usos, limite_usos_por_venta, cantidad_usos, activo
		FROM promociones
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.CatalogPromotion, 0, 32)
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

func (s *Store) GetPromotion(ctx context.Context, id string) (*domain.CatalogPromotion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, producto_id, nombre, precios, cantidad_minima, cantidad_maxima,
		       limite_usos, limite_usos_por_venta, cantidad_usos, activo
		FROM promociones
		WHERE id = $1
	`, id)
	promo, err := scanPromotion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &promo, nil
}

func scanPromotion(r rowScanner) (domain.CatalogPromotion, error) {
	var promo domain.CatalogPromotion
	var pricesJSON []byte
	var maxQty, usageLimit, perSaleLimit sql.NullInt64
	if err := r.Scan(&promo.ID, &promo.ProductID, &promo.Name, &pricesJSON, &promo.MinQuantity,
		&maxQty, &usageLimit, &perSaleLimit, &promo.UsageCount, &promo.Active); err != nil {
		return domain.CatalogPromotion{}, err
	}
	if err := json.Unmarshal(pricesJSON, &promo.Prices); err != nil {
		return domain.CatalogPromotion{}, err
	}
	promo.MaxQuantity = nullableInt(maxQty)
	promo.UsageLimit = nullableInt(usageLimit)
	promo.PerSaleLineLimit = nullableInt(perSaleLimit)
	return promo, nil
}

func (s *Store) ListCombos(ctx context.Context) ([]domain.CatalogCombo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nombre, precios, productos, limite_usos, limite_usos_por_venta, cantidad_usos, activo
		FROM combos
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	combos := make([]domain.CatalogCombo, 0, 16)
	for rows.Next() {
		combo, err := scanCombo(rows)
		if err != nil {
			return nil, err
		}
		combos = append(combos, combo)
	}
	return combos, rows.Err()
}

func (s *Store) GetCombo(ctx context.Context, id string) (*domain.CatalogCombo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nombre, precios, productos, limite_usos, limite_usos_por_venta, cantidad_usos, activo
		FROM combos
		WHERE id = $1
	`, id)
	combo, err := scanCombo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &combo, nil
}

func scanCombo(r rowScanner) (domain.CatalogCombo, error) {
	var combo domain.CatalogCombo
	var pricesJSON, itemsJSON []byte
	var usageLimit, perSaleLimit sql.NullInt64
	if err := r.Scan(&combo.ID, &combo.Name, &pricesJSON, &itemsJSON,
		&usageLimit, &perSaleLimit, &combo.UsageCount, &combo.Active); err != nil {
		return domain.CatalogCombo{}, err
	}
	if err := json.Unmarshal(pricesJSON, &combo.Prices); err != nil {
		return domain.CatalogCombo{}, err
	}
	if err := json.Unmarshal(itemsJSON, &combo.Items); err != nil {
		return domain.CatalogCombo{}, err
	}
	combo.UsageLimit = nullableInt(usageLimit)
	combo.PerSaleLineLimit = nullableInt(perSaleLimit)
	return combo, nil
}

func (s *Store) GetStockMap(ctx context.Context, productIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock
		FROM productos
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		result[id] = qty
	}
	return result, rows.Err()
}

func (s *Store) GetAllStock(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, stock FROM productos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int, 64)
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		result[id] = qty
	}
	return result, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || len(sale.Rows) == 0 {
		return nil, store.ErrInvalidSale
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	rowsJSON, err := json.Marshal(sale.Rows)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ventas (id, empleado_id, terminal_id, metodo_pago, moneda,
		                    subtotal, descuento, descuento_manual, total, filas, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.EmployeeID, sale.TerminalID, sale.PaymentMethod, string(sale.Currency),
		sale.Subtotal, sale.Discount, sale.ManualDiscount, sale.Total, rowsJSON, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, empleado_id, terminal_id, metodo_pago, moneda,
		       subtotal, descuento, descuento_manual, total, filas, created_at
		FROM ventas
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var currency string
		var rowsJSON []byte
		if err := rows.Scan(&sale.ID, &sale.EmployeeID, &sale.TerminalID, &sale.PaymentMethod, &currency,
			&sale.Subtotal, &sale.Discount, &sale.ManualDiscount, &sale.Total, &rowsJSON, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.Currency = domain.Currency(currency)
		if err := json.Unmarshal(rowsJSON, &sale.Rows); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) IncrementUsage(ctx context.Context, increments []domain.UsageIncrement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, inc := range increments {
		table := "promociones"
		if inc.Kind == domain.LineCombo {
			table = "combos"
		}
		res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET cantidad_usos = cantidad_usos + 1 WHERE id = $1`, inc.EntityID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
	}
	return tx.Commit()
}

func (s *Store) DecreaseStock(ctx context.Context, decrements map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for id, qty := range decrements {
		if qty < 0 {
			return store.ErrInvalidSale
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE productos SET stock = stock - $2
			WHERE id = $1 AND stock >= $2
		`, id, qty)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrInsufficientStock
		}
	}
	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidSale
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM usuarios
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE usuarios SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
