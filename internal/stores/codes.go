package stores

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const codeRecordVersionV1 = 1

// Purpose separates codes issued for different operations on one subject.
type Purpose uint8

const (
	PurposeSignUp Purpose = 1
	PurposeReset  Purpose = 2
)

func (p Purpose) String() string {
	switch p {
	case PurposeSignUp:
		return "signup"
	case PurposeReset:
		return "reset"
	default:
		return "unknown"
	}
}

var (
	ErrCodeNotFound         = errors.New("code not found")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrRedisUnavailable     = errors.New("code store redis unavailable")
)

// consumeCodeLua atomically performs GET, validate and DEL or SET on a code
// record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = expected purpose (byte)
// ARGV[3] = max attempts
// ARGV[4] = current unix timestamp
//
// Returns the record bytes on success, or one of the error strings
// "not_found", "expired", "purpose_mismatch", "attempts_exceeded",
// "mismatch".
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local expectedPurpose = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])
local nowUnix = tonumber(ARGV[4])

-- version(1) purpose(1) attempts(2) expiresAt(8) subjectLen(2) subject hash(32)
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local purpose = string.byte(data, 2)
local attempts = string.byte(data, 3) * 256 + string.byte(data, 4)

local expiresAt = 0
for i = 5, 12 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if purpose ~= expectedPurpose then
  redis.call('DEL', KEYS[1])
  return {err='purpose_mismatch'}
end

local subjectLen = string.byte(data, 13) * 256 + string.byte(data, 14)
local hashOffset = 15 + subjectLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 2) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// CodeRecord is one issued code. The plaintext is never stored.
type CodeRecord struct {
	Subject   string
	Purpose   Purpose
	Hash      [32]byte
	ExpiresAt int64
	Attempts  uint16
}

type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "afc"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *CodeStore) key(purpose Purpose, subject string) string {
	return s.prefix + ":" + purpose.String() + ":" + subject
}

// Issue generates a code of the given number of digits for subject, stores
// it with ttl, replacing any earlier code for the same purpose, and returns
// the plaintext.
func (s *CodeStore) Issue(ctx context.Context, purpose Purpose, subject string, digits int, ttl time.Duration) (string, error) {
	code, err := NewCode(digits)
	if err != nil {
		return "", err
	}

	record := &CodeRecord{
		Subject:   subject,
		Purpose:   purpose,
		Hash:      HashCode(code),
		ExpiresAt: s.now().Add(ttl).Unix(),
	}
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(purpose, subject), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return code, nil
}

// Consume checks code against the stored record. A match deletes the record
// and returns it. A mismatch counts an attempt; the attempt that reaches
// maxAttempts deletes the record and returns ErrCodeAttemptsExceeded.
func (s *CodeStore) Consume(ctx context.Context, purpose Purpose, subject, code string, maxAttempts int) (*CodeRecord, error) {
	provided := HashCode(code)

	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(purpose, subject)},
		string(provided[:]),
		int(purpose),
		maxAttempts,
		s.now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired", "purpose_mismatch":
			return nil, ErrCodeNotFound
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}
	record, err := decodeCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Lua string comparison is not constant time.
	if subtle.ConstantTimeCompare(record.Hash[:], provided[:]) != 1 {
		return nil, ErrCodeMismatch
	}
	return record, nil
}

// Delete removes any outstanding code for subject.
func (s *CodeStore) Delete(ctx context.Context, purpose Purpose, subject string) error {
	if err := s.redis.Del(ctx, s.key(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// NewCode returns a uniformly random numeric code.
func NewCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	if len(record.Subject) > 65535 {
		return nil, errors.New("code record subject too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Subject))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Subject)
	buf.Write(record.Hash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &CodeRecord{Purpose: Purpose(purpose)}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var subjectLen uint16
	if err := binary.Read(reader, binary.BigEndian, &subjectLen); err != nil {
		return nil, err
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(reader, subject); err != nil {
		return nil, err
	}
	record.Subject = string(subject)

	if _, err := io.ReadFull(reader, record.Hash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
