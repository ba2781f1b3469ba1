package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"authz_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrGrantNotFound is returned when a grant id does not exist.
var ErrGrantNotFound = errors.New("grant not found")

// GrantRepository stores dynamic permission grants. The in-memory
// implementation is the authority in a single process; the Mongo one is the
// durable substitute behind the same contract. Expired grants are returned
// by FindByID but filtered by FindActiveByUser (lazy expiry); nothing here
// authorizes — callers do that before mutating.
type GrantRepository interface {
	Insert(ctx context.Context, grant *models.PermissionGrant) error
	FindByID(ctx context.Context, id string) (*models.PermissionGrant, error)
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.PermissionGrant, error)
	FindAllByUser(ctx context.Context, userID string) ([]*models.PermissionGrant, error)
	Update(ctx context.Context, grant *models.PermissionGrant) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryGrantRepository keeps grants in a process-local map.
type InMemoryGrantRepository struct {
	mu     sync.RWMutex
	grants map[string]*models.PermissionGrant
	byUser map[string][]string
}

func NewInMemoryGrantRepository() *InMemoryGrantRepository {
	return &InMemoryGrantRepository{
		grants: make(map[string]*models.PermissionGrant),
		byUser: make(map[string][]string),
	}
}

func (r *InMemoryGrantRepository) Insert(_ context.Context, grant *models.PermissionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *grant
	r.grants[grant.ID] = &stored
	r.byUser[grant.UserID] = append(r.byUser[grant.UserID], grant.ID)
	return nil
}

func (r *InMemoryGrantRepository) FindByID(_ context.Context, id string) (*models.PermissionGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grant, ok := r.grants[id]
	if !ok {
		return nil, ErrGrantNotFound
	}
	found := *grant
	return &found, nil
}

func (r *InMemoryGrantRepository) FindActiveByUser(_ context.Context, userID string, now time.Time) ([]*models.PermissionGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*models.PermissionGrant
	for _, id := range r.byUser[userID] {
		grant := r.grants[id]
		if grant != nil && grant.IsActive(now) {
			found := *grant
			active = append(active, &found)
		}
	}
	return active, nil
}

func (r *InMemoryGrantRepository) FindAllByUser(_ context.Context, userID string) ([]*models.PermissionGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*models.PermissionGrant
	for _, id := range r.byUser[userID] {
		if grant := r.grants[id]; grant != nil {
			found := *grant
			all = append(all, &found)
		}
	}
	return all, nil
}

func (r *InMemoryGrantRepository) Update(_ context.Context, grant *models.PermissionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grants[grant.ID]; !ok {
		return ErrGrantNotFound
	}
	stored := *grant
	r.grants[grant.ID] = &stored
	return nil
}

func (r *InMemoryGrantRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, grant := range r.grants {
		if grant.ExpiresAt != nil && grant.ExpiresAt.Before(cutoff) {
			delete(r.grants, id)
			ids := r.byUser[grant.UserID]
			for i, gid := range ids {
				if gid == id {
					r.byUser[grant.UserID] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
			removed++
		}
	}
	return removed, nil
}

// MongoGrantRepository persists grants in a Mongo collection.
type MongoGrantRepository struct {
	collection *mongo.Collection
}

func NewMongoGrantRepository(db *mongo.Database) *MongoGrantRepository {
	return &MongoGrantRepository{
		collection: db.Collection("PermissionGrant"),
	}
}

func (r *MongoGrantRepository) Insert(ctx context.Context, grant *models.PermissionGrant) error {
	_, err := r.collection.InsertOne(ctx, grant)
	return err
}

func (r *MongoGrantRepository) FindByID(ctx context.Context, id string) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&grant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return &grant, nil
}

func (r *MongoGrantRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.PermissionGrant, error) {
	filter := bson.M{
		"userId":  userID,
		"revoked": false,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": now}},
		},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var grants []*models.PermissionGrant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *MongoGrantRepository) FindAllByUser(ctx context.Context, userID string) ([]*models.PermissionGrant, error) {
	opts := options.Find().SetSort(bson.M{"grantedAt": -1})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var grants []*models.PermissionGrant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *MongoGrantRepository) Update(ctx context.Context, grant *models.PermissionGrant) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": grant.ID}, grant)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *MongoGrantRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$ne": nil, "$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return int(result.DeletedCount), nil
}
