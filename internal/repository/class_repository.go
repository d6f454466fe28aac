package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// ClassRepository reads the classes and streams admissions are placed into.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, level FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindStreamByID returns a stream record by ID.
func (r *ClassRepository) FindStreamByID(ctx context.Context, id string) (*models.Stream, error) {
	const query = `SELECT id, class_id, name FROM streams WHERE id = $1`
	var stream models.Stream
	if err := r.db.GetContext(ctx, &stream, query, id); err != nil {
		return nil, err
	}
	return &stream, nil
}

// ListWithStreams returns every class with its streams, ordered by level and name.
func (r *ClassRepository) ListWithStreams(ctx context.Context) ([]models.ClassWithStreams, error) {
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, `SELECT id, name, level FROM classes ORDER BY level ASC, name ASC`); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	var streams []models.Stream
	if err := r.db.SelectContext(ctx, &streams, `SELECT id, class_id, name FROM streams ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}

	byClass := make(map[string][]models.Stream, len(classes))
	for _, stream := range streams {
		byClass[stream.ClassID] = append(byClass[stream.ClassID], stream)
	}
	result := make([]models.ClassWithStreams, 0, len(classes))
	for _, class := range classes {
		item := models.ClassWithStreams{Class: class, Streams: byClass[class.ID]}
		if item.Streams == nil {
			item.Streams = []models.Stream{}
		}
		result = append(result, item)
	}
	return result, nil
}
