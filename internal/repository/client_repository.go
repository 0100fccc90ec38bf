package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"visadesk/internal/database"
	"visadesk/internal/models"
)

// ClientRepository handles the client registry.
type ClientRepository struct {
	*database.Repository
}

// NewClientRepository creates a client repository.
func NewClientRepository(db *database.Database, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{Repository: database.NewRepository(db, logger)}
}

const clientColumns = `id, name, email, phone, passport_number, nationality, notes, created_at, updated_at`

// Create inserts a new client.
func (r *ClientRepository) Create(ctx context.Context, req *models.CreateClientRequest) (*models.Client, error) {
	if req.Name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	if req.Email == "" {
		return nil, models.NewValidationError("email", "must not be empty")
	}

	now := time.Now().UTC()
	client := &models.Client{
		ID:             uuid.New(),
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		PassportNumber: req.PassportNumber,
		Nationality:    req.Nationality,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO clients (` + clientColumns + `)
		VALUES (:id, :name, :email, :phone, :passport_number, :nationality, :notes, :created_at, :updated_at)`
	if _, err := r.DB().NamedExecContext(ctx, query, client); err != nil {
		return nil, models.NewPersistenceError("create client", err)
	}
	return client, nil
}

// GetByID retrieves a client by id.
func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	if err := r.DB().GetContext(ctx, &client, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(models.ErrNotFound, "client %s", id)
		}
		return nil, models.NewPersistenceError("get client", err)
	}
	return &client, nil
}

// List retrieves clients with optional name/email search.
func (r *ClientRepository) List(ctx context.Context, search string, paginate *database.Paginate) (*database.PaginatedResult, error) {
	whereClause := "1=1"
	var args []interface{}
	if search != "" {
		args = append(args, "%"+search+"%")
		whereClause = "(name ILIKE $1 OR email ILIKE $1)"
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM clients WHERE %s", whereClause)
	if err := r.DB().GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, models.NewPersistenceError("count clients", err)
	}

	args = append(args, paginate.Limit, paginate.Offset)
	dataQuery := fmt.Sprintf(`
		SELECT `+clientColumns+`
		FROM clients
		WHERE %s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args))

	var clients []models.Client
	if err := r.DB().SelectContext(ctx, &clients, dataQuery, args...); err != nil {
		return nil, models.NewPersistenceError("list clients", err)
	}
	return database.NewPaginatedResult(clients, total, paginate), nil
}

// Update applies the provided fields to a client.
func (r *ClientRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateClientRequest) (*models.Client, error) {
	setParts := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	addSet := func(column string, value interface{}) {
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, models.NewValidationError("name", "must not be empty")
		}
		addSet("name", *req.Name)
	}
	if req.Email != nil {
		if *req.Email == "" {
			return nil, models.NewValidationError("email", "must not be empty")
		}
		addSet("email", *req.Email)
	}
	if req.Phone != nil {
		addSet("phone", *req.Phone)
	}
	if req.PassportNumber != nil {
		addSet("passport_number", *req.PassportNumber)
	}
	if req.Nationality != nil {
		addSet("nationality", *req.Nationality)
	}
	if req.Notes != nil {
		addSet("notes", *req.Notes)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, strings.Join(setParts, ", "), len(args))

	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewPersistenceError("update client", err)
	}
	if err := requireRow(result, "client"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a client.
func (r *ClientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.DB().ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return models.NewPersistenceError("delete client", err)
	}
	return requireRow(result, "client")
}
