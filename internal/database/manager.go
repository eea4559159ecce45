package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"ruangkelas/internal/logging"
	dbconfig "ruangkelas/pkg/database"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

var log = logging.ForService("database")

// Manager implements the DatabaseManager interface over SQLite
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies the embedded schema migrations
func (m *Manager) Migrate() ([]string, error) {
	return dbconfig.NewMigrationManager(m.db, dbconfig.Migrations()).ApplyMigrations()
}

// ValidateSchema checks the live schema against what the queries expect
func (m *Manager) ValidateSchema() error {
	return dbconfig.NewSchemaValidator(m.db).Validate()
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			// FUNCTIONAL DISCOVERY: Only a busy database is worth one retry;
			// constraint failures would fail the same way again
			if isBusy(err) {
				log.Warnf("Database busy, retrying in %v: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
			}
			op.result <- err

		case <-m.shutdown:
			log.Debugf("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked)
}

// translateError maps SQLite constraint failures onto domain errors
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return interfaces.ErrConflict
	case sqlite3.ErrConstraintForeignKey:
		return types.ErrInvalidReference
	default:
		return err
	}
}

// CreateUser inserts a user and fills in its ID and creation time
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return ErrMissingPasswordHash
	}
	user.Name = strings.TrimSpace(user.Name)
	user.CreatedAt = time.Now().UTC()

	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO users (name, role, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			user.Name, string(user.Role), user.PasswordHash, user.CreatedAt,
		)
		if err != nil {
			return translateError(err)
		}
		user.ID, err = res.LastInsertId()
		return err
	})
}

// UpdateUserPassword replaces a user's bcrypt hash
func (m *Manager) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	if passwordHash == "" {
		return ErrMissingPasswordHash
	}
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
		if err != nil {
			return err
		}
		return requireOneRow(res)
	})
}

const userColumns = `id, name, role, password_hash, created_at`

// GetUser retrieves a user by ID
func (m *Manager) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

// GetUserByName retrieves a user by name, ignoring case
func (m *Manager) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name))
	return scanUser(row)
}

// ListUsers returns every user ordered by ID
func (m *Manager) ListUsers(ctx context.Context) ([]*types.User, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []*types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateRoom inserts a room owned by an existing teacher
func (m *Manager) CreateRoom(ctx context.Context, room *types.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	room.Name = strings.TrimSpace(room.Name)
	room.CreatedAt = time.Now().UTC()

	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		var role string
		err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, room.TeacherID).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && types.Role(role) != types.RoleTeacher) {
			return ErrNotATeacher
		}
		if err != nil {
			return fmt.Errorf("failed to look up teacher: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (name, teacher_id, created_at) VALUES (?, ?, ?)`,
			room.Name, room.TeacherID, room.CreatedAt,
		)
		if err != nil {
			return translateError(err)
		}
		if room.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetRoom retrieves a room by ID
func (m *Manager) GetRoom(ctx context.Context, roomID int64) (*types.Room, error) {
	var room types.Room
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, teacher_id, created_at FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.Name, &room.TeacherID, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

// ListRooms returns every room ordered by ID
func (m *Manager) ListRooms(ctx context.Context) ([]*types.Room, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, teacher_id, created_at FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rooms := []*types.Room{}
	for rows.Next() {
		var room types.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.TeacherID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

// CreateMaterial inserts a material into an existing room
func (m *Manager) CreateMaterial(ctx context.Context, material *types.Material) error {
	if err := material.Validate(); err != nil {
		return err
	}
	material.Title = strings.TrimSpace(material.Title)
	material.CreatedAt = time.Now().UTC()

	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO materials (room_id, title, body, created_at) VALUES (?, ?, ?, ?)`,
			material.RoomID, material.Title, material.Body, material.CreatedAt,
		)
		if err != nil {
			return translateError(err)
		}
		material.ID, err = res.LastInsertId()
		return err
	})
}

// GetMaterial retrieves a material by ID
func (m *Manager) GetMaterial(ctx context.Context, materialID int64) (*types.Material, error) {
	var material types.Material
	err := m.db.QueryRowContext(ctx,
		`SELECT id, room_id, title, body, created_at FROM materials WHERE id = ?`, materialID,
	).Scan(&material.ID, &material.RoomID, &material.Title, &material.Body, &material.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	return &material, nil
}

// ListMaterials returns the materials of one room ordered by ID
func (m *Manager) ListMaterials(ctx context.Context, roomID int64) ([]*types.Material, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, room_id, title, body, created_at FROM materials WHERE room_id = ? ORDER BY id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	materials := []*types.Material{}
	for rows.Next() {
		var material types.Material
		if err := rows.Scan(&material.ID, &material.RoomID, &material.Title, &material.Body, &material.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan material row: %w", err)
		}
		materials = append(materials, &material)
	}
	return materials, rows.Err()
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*types.User, error) {
	var user types.User
	var role string
	err := s.Scan(&user.ID, &user.Name, &role, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = types.Role(role)
	return &user, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
