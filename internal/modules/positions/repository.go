package positions

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Repository handles position database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new position repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

const positionColumns = `id, account_id, name, identifier, symbol, purchase_price,
	quantity, fee, current_price, previous_price, currency, purchase_date`

func scanPosition(row interface{ Scan(...interface{}) error }) (Position, error) {
	var p Position
	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Identifier, &p.Symbol,
		&p.PurchasePrice, &p.Quantity, &p.Fee, &p.CurrentPrice,
		&p.PreviousPrice, &p.Currency, &p.PurchaseDate)
	return p, err
}

// Create inserts a new position. The previous price is seeded from the
// purchase price so day-one gain/loss is zero, not from a market close.
func (r *Repository) Create(p Position) (int64, error) {
	if p.Currency == "" {
		p.Currency = "EUR"
	}
	result, err := r.db.Exec(`INSERT INTO positions
		(account_id, name, identifier, symbol, purchase_price, quantity, fee,
		 current_price, previous_price, currency, purchase_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.Name, p.Identifier, p.Symbol, p.PurchasePrice, p.Quantity,
		p.Fee, p.CurrentPrice, p.PurchasePrice, p.Currency, p.PurchaseDate)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted position id: %w", err)
	}
	return id, nil
}

// Update edits the user-editable fields of a position.
func (r *Repository) Update(p Position) error {
	_, err := r.db.Exec(`UPDATE positions
		SET name = ?, identifier = ?, symbol = ?, purchase_price = ?,
		    quantity = ?, fee = ?, current_price = ?, purchase_date = ?
		WHERE id = ?`,
		p.Name, p.Identifier, p.Symbol, p.PurchasePrice, p.Quantity, p.Fee,
		p.CurrentPrice, p.PurchaseDate, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes a position. Price history and monthly rows cascade.
func (r *Repository) Delete(id int64) error {
	if _, err := r.db.Exec(`DELETE FROM positions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete position %d: %w", id, err)
	}
	return nil
}

// GetByID returns a single position.
func (r *Repository) GetByID(id int64) (*Position, error) {
	row := r.db.QueryRow(`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", id, err)
	}
	return &p, nil
}

// GetByUser returns all positions across a user's accounts.
func (r *Repository) GetByUser(userID int64) ([]Position, error) {
	rows, err := r.db.Query(`SELECT p.id, p.account_id, p.name, p.identifier, p.symbol,
		p.purchase_price, p.quantity, p.fee, p.current_price, p.previous_price,
		p.currency, p.purchase_date
		FROM positions p
		JOIN accounts a ON p.account_id = a.id
		WHERE a.user_id = ?
		ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for user %d: %w", userID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// GetAll returns every position in the system.
func (r *Repository) GetAll() ([]Position, error) {
	rows, err := r.db.Query(`SELECT ` + positionColumns + ` FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// GetByIdentifier returns all positions whose raw identifier matches,
// case-insensitively. Scoped to one user when userID > 0.
func (r *Repository) GetByIdentifier(identifier string, userID int64) ([]Position, error) {
	upper := strings.ToUpper(strings.TrimSpace(identifier))

	query := `SELECT p.id, p.account_id, p.name, p.identifier, p.symbol,
		p.purchase_price, p.quantity, p.fee, p.current_price, p.previous_price,
		p.currency, p.purchase_date
		FROM positions p
		JOIN accounts a ON p.account_id = a.id
		WHERE UPPER(p.identifier) = ?`
	args := []interface{}{upper}
	if userID > 0 {
		query += ` AND a.user_id = ?`
		args = append(args, userID)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for identifier %s: %w", upper, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// DistinctIdentifiers returns the distinct uppercased non-empty raw
// identifiers, for every position in the system (userID == 0) or for
// one user's positions.
func (r *Repository) DistinctIdentifiers(userID int64) ([]string, error) {
	query := `SELECT DISTINCT UPPER(p.identifier)
		FROM positions p
		JOIN accounts a ON p.account_id = a.id
		WHERE p.identifier != ''`
	args := []interface{}{}
	if userID > 0 {
		query += ` AND a.user_id = ?`
		args = append(args, userID)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []string
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		identifiers = append(identifiers, ident)
	}
	return identifiers, rows.Err()
}

// DistinctSymbols returns the distinct resolved symbols held anywhere in
// the system. Used to build the analysis universe.
func (r *Repository) DistinctSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM positions WHERE symbol != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ApplyQuote stores the outcome of a successful resolution on one
// position: canonical symbol, both prices and the quoting currency are
// written together so the currency invariant holds.
func (r *Repository) ApplyQuote(positionID int64, symbol string, current, previous float64, currency string) error {
	_, err := r.db.Exec(`UPDATE positions
		SET symbol = ?, current_price = ?, previous_price = ?, currency = ?
		WHERE id = ?`,
		symbol, current, previous, currency, positionID)
	if err != nil {
		return fmt.Errorf("failed to apply quote to position %d: %w", positionID, err)
	}
	return nil
}

// UpsertHistory records today's price for a position, replacing any
// earlier refresh from the same calendar day.
func (r *Repository) UpsertHistory(positionID int64, day string, price float64, currency string) error {
	_, err := r.db.Exec(`INSERT INTO price_history (position_id, day, price, currency)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (position_id, day) DO UPDATE SET price = excluded.price, currency = excluded.currency`,
		positionID, day, price, currency)
	if err != nil {
		return fmt.Errorf("failed to upsert price history for position %d: %w", positionID, err)
	}
	return nil
}

// GetHistory returns up to limit daily prices for a position, newest first.
func (r *Repository) GetHistory(positionID int64, limit int) ([]HistoryEntry, error) {
	rows, err := r.db.Query(`SELECT position_id, day, price, currency
		FROM price_history WHERE position_id = ?
		ORDER BY day DESC LIMIT ?`, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for position %d: %w", positionID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.PositionID, &e.Day, &e.Price, &e.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OwnerUserID returns the user owning the account a position belongs to.
func (r *Repository) OwnerUserID(positionID int64) (int64, error) {
	var userID int64
	err := r.db.QueryRow(`SELECT a.user_id FROM positions p
		JOIN accounts a ON p.account_id = a.id
		WHERE p.id = ?`, positionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("position %d not found", positionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get owner of position %d: %w", positionID, err)
	}
	return userID, nil
}

func collectPositions(rows *sql.Rows) ([]Position, error) {
	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}
