package local

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	statusPending   = "pending"
	statusConfirmed = "confirmed"

	fieldID        = "id"
	fieldEmail     = "email"
	fieldHash      = "hash"
	fieldStatus    = "status"
	fieldCreatedAt = "created_at"
	attrPrefix     = "attr."
)

var errNoUser = errors.New("local: user not found")

type user struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
	Attributes   map[string]string
}

func (u *user) confirmed() bool { return u.Status == statusConfirmed }

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (p *Provider) userKey(email string) string {
	return p.config.Prefix + ":user:" + email
}

func (p *Provider) loadUser(ctx context.Context, email string) (*user, error) {
	fields, err := p.redis.HGetAll(ctx, p.userKey(email)).Result()
	if err != nil {
		return nil, err
	}
	if fields[fieldID] == "" {
		return nil, errNoUser
	}

	u := &user{
		ID:           fields[fieldID],
		Email:        fields[fieldEmail],
		PasswordHash: fields[fieldHash],
		Status:       fields[fieldStatus],
		Attributes:   make(map[string]string),
	}
	for k, v := range fields {
		if name, ok := strings.CutPrefix(k, attrPrefix); ok {
			u.Attributes[name] = v
		}
	}
	return u, nil
}

// createUser claims the user key and writes the record. It reports false
// when the user already exists.
func (p *Provider) createUser(ctx context.Context, email, passwordHash, status string, attributes map[string]string) (*user, bool, error) {
	key := p.userKey(email)
	id := uuid.NewString()

	claimed, err := p.redis.HSetNX(ctx, key, fieldID, id).Result()
	if err != nil || !claimed {
		return nil, false, err
	}

	values := map[string]any{
		fieldEmail:     email,
		fieldHash:      passwordHash,
		fieldStatus:    status,
		fieldCreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range attributes {
		values[attrPrefix+k] = v
	}
	if err := p.redis.HSet(ctx, key, values).Err(); err != nil {
		_ = p.redis.Del(ctx, key).Err()
		return nil, false, err
	}

	return &user{ID: id, Email: email, PasswordHash: passwordHash, Status: status, Attributes: attributes}, true, nil
}

func (p *Provider) setUserFields(ctx context.Context, email string, values map[string]any) error {
	key := p.userKey(email)
	// Only touch existing users; a concurrent delete must not resurrect a
	// partial record.
	return p.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoUser
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values)
			return nil
		})
		return err
	}, key)
}
