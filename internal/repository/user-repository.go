package repository

import (
	"context"
	"errors"
	"sync"

	"authz_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/crypto/bcrypt"
)

// UserDirectory is the external collaborator the session service consults
// before creating a session. A nil user with a nil error means the user
// does not exist.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.DirectoryUser, error)
	FindByUsername(ctx context.Context, username string) (*models.DirectoryUser, error)
}

// InMemoryUserDirectory is the default directory backend, used in tests and
// standalone deployments.
type InMemoryUserDirectory struct {
	mu         sync.RWMutex
	users      map[string]*models.DirectoryUser
	byUsername map[string]string
}

func NewInMemoryUserDirectory() *InMemoryUserDirectory {
	return &InMemoryUserDirectory{
		users:      make(map[string]*models.DirectoryUser),
		byUsername: make(map[string]string),
	}
}

// Add registers a user, hashing the supplied password with bcrypt. An empty
// password leaves the hash empty, which never verifies.
func (d *InMemoryUserDirectory) Add(user *models.DirectoryUser, password string) error {
	if user == nil || user.ID == "" {
		return errors.New("user requires an id")
	}
	stored := *user
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		stored.PasswordHash = string(hash)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[stored.ID] = &stored
	if stored.Username != "" {
		d.byUsername[stored.Username] = stored.ID
	}
	return nil
}

func (d *InMemoryUserDirectory) FindByID(_ context.Context, id string) (*models.DirectoryUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	found := *user
	return &found, nil
}

func (d *InMemoryUserDirectory) FindByUsername(_ context.Context, username string) (*models.DirectoryUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byUsername[username]
	if !ok {
		return nil, nil
	}
	found := *d.users[id]
	return &found, nil
}

// VerifyPassword checks a candidate password against the stored hash.
func (d *InMemoryUserDirectory) VerifyPassword(user *models.DirectoryUser, password string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// MongoUserDirectory reads users from the shared directory collection.
type MongoUserDirectory struct {
	collection *mongo.Collection
}

func NewMongoUserDirectory(db *mongo.Database) *MongoUserDirectory {
	return &MongoUserDirectory{
		collection: db.Collection("User"),
	}
}

func (d *MongoUserDirectory) FindByID(ctx context.Context, id string) (*models.DirectoryUser, error) {
	var user models.DirectoryUser
	err := d.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *MongoUserDirectory) FindByUsername(ctx context.Context, username string) (*models.DirectoryUser, error) {
	var user models.DirectoryUser
	err := d.collection.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
