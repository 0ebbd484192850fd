package auth

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = bytes.Repeat([]byte{0x42}, 32)

// fakeQueries serves get-api-key-by-hash from memory.
type fakeQueries struct {
	rows    map[string]keyRow
	err     error
	updates int
}

func (f *fakeQueries) Get(_ context.Context, name string, dest any, args ...any) error {
	if f.err != nil {
		return f.err
	}
	if name != "get-api-key-by-hash" {
		return errors.New("unexpected query " + name)
	}
	row, ok := f.rows[string(args[0].([]byte))]
	if !ok {
		return sql.ErrNoRows
	}
	*dest.(*keyRow) = row
	return nil
}

func (f *fakeQueries) Exec(_ context.Context, name string, _ ...any) (sql.Result, error) {
	if name == "update-last-used" {
		f.updates++
	}
	return nil, nil
}

func newTestAuth(t *testing.T) (*Authenticator, *fakeQueries, string, string) {
	t.Helper()
	active, activeHash, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	revoked, revokedHash, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)

	q := &fakeQueries{rows: map[string]keyRow{
		string(activeHash): {APIKeyID: "k1", CustomerID: "acme"},
		string(revokedHash): {
			APIKeyID:   "k2",
			CustomerID: "acme",
			RevokedAt:  sql.NullTime{Time: time.Now(), Valid: true},
		},
	}}
	return NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q, nil), q, active, revoked
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", FormatAPIKey(testSecretID, random), false},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + random, true},
		{"wrong version", "vx-v2-" + testSecretID + "-" + random, true},
		{"short secret id", "vx-v1-abc-" + random, true},
		{"short random", "vx-v1-" + testSecretID + "-abcd", true},
		{"uppercase hex", "vx-v1-" + strings.ToUpper(testSecretID) + "-" + random, true},
		{"extra segment", "vx-v1-" + testSecretID + "-" + random + "-x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, rnd, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKeyFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testSecretID, secretID)
			assert.Equal(t, random, rnd)
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)

	secretID, _, err := ParseAPIKey(key)
	require.NoError(t, err)
	assert.Equal(t, testSecretID, secretID)
	assert.Equal(t, ComputeHMAC(testSecret, key), hash)

	other, _, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, _, err = GenerateAPIKey("nothex", testSecret)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	a, q, active, revoked := newTestAuth(t)
	ctx := context.Background()

	customer, err := a.Authenticate(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, "acme", customer)
	assert.Equal(t, 1, q.updates)

	_, err = a.Authenticate(ctx, revoked)
	assert.ErrorIs(t, err, ErrKeyRevoked)

	unknown := FormatAPIKey("fedcba9876543210fedcba9876543210", strings.Repeat("0", 64))
	_, err = a.Authenticate(ctx, unknown)
	assert.ErrorIs(t, err, ErrUnknownKey)

	forged := FormatAPIKey(testSecretID, strings.Repeat("0", 64))
	_, err = a.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidKey)

	q.err = errors.New("connection refused")
	_, err = a.Authenticate(ctx, active)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestUnaryInterceptor(t *testing.T) {
	a, q, active, revoked := newTestAuth(t)
	intercept := a.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/varextract.v1.ExtractionService/Extract"}

	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = CustomerIDFromContext(ctx)
		return "ok", nil
	}

	call := func(md metadata.MD) error {
		ctx := context.Background()
		if md != nil {
			ctx = metadata.NewIncomingContext(ctx, md)
		}
		_, err := intercept(ctx, nil, info, handler)
		return err
	}

	require.NoError(t, call(metadata.Pairs(MetadataKey, active)))
	assert.Equal(t, "acme", seen)

	tests := []struct {
		name string
		md   metadata.MD
		want codes.Code
	}{
		{"no metadata", nil, codes.Unauthenticated},
		{"no key", metadata.Pairs("other", "x"), codes.Unauthenticated},
		{"malformed key", metadata.Pairs(MetadataKey, "nope"), codes.Unauthenticated},
		{"revoked key", metadata.Pairs(MetadataKey, revoked), codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(call(tt.md)))
		})
	}

	q.err = errors.New("db down")
	assert.Equal(t, codes.Unavailable, status.Code(call(metadata.Pairs(MetadataKey, active))))
}

func TestCustomerIDFromContext(t *testing.T) {
	assert.Equal(t, "", CustomerIDFromContext(context.Background()))
	assert.Equal(t, "acme", CustomerIDFromContext(WithCustomerID(context.Background(), "acme")))
}
