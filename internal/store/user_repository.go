package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"messenger-service/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

const (
	userPrefix  = "user:"
	emailPrefix = "useremail:"
)

// UserRepository persists registered accounts.
type UserRepository interface {
	Create(user models.User) error
	GetByID(id string) (models.User, error)
	GetByEmail(email string) (models.User, error)
	List() ([]models.User, error)
	UpdatePresence(id string, status models.Presence, lastSeen time.Time) error
}

// UserRepo is the badger-backed implementation. Unlike the ledger it is
// called from concurrent HTTP handlers; badger transactions carry the
// consistency.
type UserRepo struct {
	db *badger.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *badger.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create stores a new user, enforcing email uniqueness via a secondary key.
func (r *UserRepo) Create(user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	emailKey := []byte(emailPrefix + user.Email)
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(userPrefix+user.ID), data); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID))
	})
}

// GetByID fetches a user by identity.
func (r *UserRepo) GetByID(id string) (models.User, error) {
	var user models.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &user)
		})
	})
	return user, err
}

// GetByEmail resolves the email index, then the user record.
func (r *UserRepo) GetByEmail(email string) (models.User, error) {
	var id string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(emailPrefix + email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			id = string(v)
			return nil
		})
	})
	if err != nil {
		return models.User{}, err
	}
	return r.GetByID(id)
}

// List returns every registered user.
func (r *UserRepo) List() ([]models.User, error) {
	var users []models.User
	prefix := []byte(userPrefix)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var user models.User
				if err := json.Unmarshal(v, &user); err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

// UpdatePresence stamps the connectivity state on the stored record.
func (r *UserRepo) UpdatePresence(id string, status models.Presence, lastSeen time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var user models.User
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &user)
		}); err != nil {
			return err
		}
		user.Status = status
		user.LastSeen = lastSeen
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set([]byte(userPrefix+id), data)
	})
}
