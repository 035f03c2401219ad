package local

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/authflow/token"
	"github.com/redis/go-redis/v9"
)

func (p *Provider) deviceKey() string {
	return p.config.Prefix + ":device:" + p.config.DeviceID
}

// currentSession returns the device's live session, or nil when there is
// none. An invalid or expired token is removed.
func (p *Provider) currentSession(ctx context.Context) (string, *token.SessionClaims, error) {
	raw, err := p.redis.Get(ctx, p.deviceKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	claims, err := p.tokens.Parse(raw)
	if err != nil {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "discarding invalid device session", slog.String("error", err.Error()))
		if err := p.redis.Del(ctx, p.deviceKey()).Err(); err != nil {
			return "", nil, err
		}
		return "", nil, nil
	}
	return raw, claims, nil
}

// startSession issues a token for u and stores it as the device session.
func (p *Provider) startSession(ctx context.Context, u *user) (string, error) {
	raw, claims, err := p.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return "", err
	}
	if err := p.redis.Set(ctx, p.deviceKey(), raw, p.tokens.TTL()).Err(); err != nil {
		return "", err
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "session started",
		slog.String("username", u.Email),
		slog.String("session_id", claims.SessionID),
	)
	return raw, nil
}

// endSession deletes the device session and reports whether one existed.
func (p *Provider) endSession(ctx context.Context) (bool, error) {
	n, err := p.redis.Del(ctx, p.deviceKey()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
