package remote

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/faucetdb/tokengate/internal/model"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Record is a stored model instance. The "id" key is assigned on create.
type Record map[string]interface{}

// MemoryRepository is an in-memory record store backing the standard
// methods.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

// Create stores a copy of data under a new id and returns it.
func (r *MemoryRepository) Create(data Record) Record {
	rec := maps.Clone(data)
	if rec == nil {
		rec = Record{}
	}
	id := uuid.Must(uuid.NewV7()).String()
	rec["id"] = id

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = rec
	r.order = append(r.order, id)
	return maps.Clone(rec)
}

// Find returns the records whose fields equal every key in where, in
// insertion order.
func (r *MemoryRepository) Find(where Record) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if matches(rec, where) {
			out = append(out, maps.Clone(rec))
		}
	}
	return out
}

// FindByID returns one record.
func (r *MemoryRepository) FindByID(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return maps.Clone(rec), nil
}

// Exists reports whether a record with this id is stored.
func (r *MemoryRepository) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// Count returns the number of records matching where.
func (r *MemoryRepository) Count(where Record) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if matches(rec, where) {
			n++
		}
	}
	return n
}

// UpdateByID merges patch into a record. The id cannot be changed.
func (r *MemoryRepository) UpdateByID(id string, patch Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	return maps.Clone(rec), nil
}

// DeleteByID removes a record and returns how many were deleted.
func (r *MemoryRepository) DeleteByID(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return 0
	}
	delete(r.records, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return 1
}

func matches(rec, where Record) bool {
	for k, want := range where {
		if !reflect.DeepEqual(rec[k], want) {
			return false
		}
	}
	return true
}

// CountResult is returned by count and deleteById.
type CountResult struct {
	Count int `json:"count"`
}

// ExistsResult is returned by exists.
type ExistsResult struct {
	Exists bool `json:"exists"`
}

// ExposeStandardMethods adds the CRUD methods backed by repo to m.
func ExposeStandardMethods(m *Model, repo *MemoryRepository) *Model {
	m.Expose(Method{
		Name:        "create",
		AccessType:  model.AccessWrite,
		Description: "Create a new instance",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			data, err := recordArg(args, "data")
			if err != nil {
				return nil, err
			}
			return repo.Create(data), nil
		},
	})
	m.Expose(Method{
		Name:        "find",
		AccessType:  model.AccessRead,
		Description: "Find all instances matching a filter",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			where, err := recordArg(args, "where")
			if err != nil {
				return nil, err
			}
			return page(repo.Find(where), intArg(args, "offset"), intArg(args, "limit")), nil
		},
	})
	m.Expose(Method{
		Name:        "findById",
		AccessType:  model.AccessRead,
		Description: "Find an instance by id",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			return repo.FindByID(id)
		},
	})
	m.Expose(Method{
		Name:        "exists",
		AccessType:  model.AccessRead,
		Description: "Check whether an instance exists",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			return ExistsResult{Exists: repo.Exists(id)}, nil
		},
	})
	m.Expose(Method{
		Name:        "count",
		AccessType:  model.AccessRead,
		Description: "Count instances matching a filter",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			where, err := recordArg(args, "where")
			if err != nil {
				return nil, err
			}
			return CountResult{Count: repo.Count(where)}, nil
		},
	})
	m.Expose(Method{
		Name:        "updateById",
		Aliases:     []string{"updateAttributes"},
		AccessType:  model.AccessWrite,
		Description: "Update attributes of an instance",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			data, err := recordArg(args, "data")
			if err != nil {
				return nil, err
			}
			return repo.UpdateByID(id, data)
		},
	})
	m.Expose(Method{
		Name:        "deleteById",
		Aliases:     []string{"removeById", "destroyById"},
		AccessType:  model.AccessWrite,
		Description: "Delete an instance by id",
		Handler: func(_ context.Context, args Args) (interface{}, error) {
			id, err := idArg(args)
			if err != nil {
				return nil, err
			}
			return CountResult{Count: repo.DeleteByID(id)}, nil
		},
	})
	return m
}

// page applies offset and limit to records. A non-positive limit returns
// everything after offset.
func page(records []Record, offset, limit int) []Record {
	if offset > 0 {
		if offset >= len(records) {
			return []Record{}
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

func intArg(args Args, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// idArg accepts string and numeric ids.
func idArg(args Args) (string, error) {
	switch v := args["id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case int, int64, float64:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("%w: id is required", ErrInvalidArgument)
}

func recordArg(args Args, key string) (Record, error) {
	switch v := args[key].(type) {
	case nil:
		return Record{}, nil
	case Record:
		return v, nil
	case map[string]interface{}:
		return Record(v), nil
	}
	return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidArgument, key)
}
