package api

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/varextract/internal/catalog"
	"github.com/solatis/varextract/internal/core/auth"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/rules"
	"github.com/solatis/varextract/internal/types"
)

// memoryStore serves collections from memory and counts loads.
type memoryStore struct {
	mu          sync.Mutex
	collections map[string]*types.Collection
	loads       int
}

func (m *memoryStore) put(customer string, c *types.Collection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[customer] = c.WithID(types.NewCollectionID())
}

func (m *memoryStore) LatestID(_ context.Context, customer string) (types.CollectionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[customer]
	if !ok {
		return "", types.ErrCollectionNotFound
	}
	return c.ID(), nil
}

func (m *memoryStore) Load(_ context.Context, customer string) (*types.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	c, ok := m.collections[customer]
	if !ok {
		return nil, types.ErrCollectionNotFound
	}
	return c, nil
}

// customerFromMetadata stands in for the auth interceptor.
func customerFromMetadata(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-customer"); len(ids) > 0 {
			ctx = auth.WithCustomerID(ctx, ids[0])
		}
	}
	return handler(ctx, req)
}

func startService(t *testing.T, store CollectionSource, cfg config.ServerConfig) *ExtractionClient {
	t.Helper()
	base, err := rules.NewEngine(catalog.DefaultCollection())
	require.NoError(t, err)
	svc, err := NewExtractionService(base, store, cfg, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(customerFromMetadata))
	RegisterExtractionServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewExtractionClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func sampleRecord() map[string]any {
	return map[string]any{
		"key": "OPS-7",
		"fields": map[string]any{
			"created":   "2024-03-01T09:00:00.000+0000",
			"issuetype": map[string]any{"name": "Bug"},
			"project":   map[string]any{"key": "OPS"},
		},
	}
}

func sampleHistory() []any {
	return []any{
		map[string]any{
			"created": "2024-03-01T10:00:00.000+0000",
			"items":   []any{map[string]any{"field": "status", "fromString": "Open", "toString": "In Progress"}},
		},
		map[string]any{
			"created": "2024-03-01T12:00:00.000+0000",
			"items":   []any{map[string]any{"field": "status", "fromString": "In Progress", "toString": "Done"}},
		},
	}
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBatchSize: 2}
}

func TestExtract(t *testing.T) {
	client := startService(t, nil, testConfig())
	ctx := context.Background()

	resp, err := client.Extract(ctx, mustStruct(t, map[string]any{
		"variable": "created_at",
		"record":   sampleRecord(),
	}))
	require.NoError(t, err)
	got := resp.AsMap()
	assert.Equal(t, true, got["found"])
	assert.Equal(t, "2024-03-01T09:00:00.000+0000", got["value"])
	assert.Equal(t, float64(1), got["source_priority"])
	assert.Equal(t, "field_value", got["source_kind"])

	resp, err = client.Extract(ctx, mustStruct(t, map[string]any{
		"variable": "time_in_progress",
		"record":   sampleRecord(),
		"history":  sampleHistory(),
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(7200), resp.AsMap()["value"])

	resp, err = client.Extract(ctx, mustStruct(t, map[string]any{
		"variable": "no_such_variable",
		"record":   sampleRecord(),
	}))
	require.NoError(t, err)
	assert.Equal(t, false, resp.AsMap()["found"])
	assert.Equal(t, rules.MissNoMapping, resp.AsMap()["error"])
}

func TestExtractInvalidArgument(t *testing.T) {
	client := startService(t, nil, testConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		req  map[string]any
	}{
		{"missing variable", map[string]any{"record": sampleRecord()}},
		{"missing record", map[string]any{"variable": "created_at"}},
		{"history not a list", map[string]any{"variable": "created_at", "record": sampleRecord(), "history": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Extract(ctx, mustStruct(t, tt.req))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestExtractAll(t *testing.T) {
	client := startService(t, nil, testConfig())
	ctx := context.Background()

	resp, err := client.ExtractAll(ctx, mustStruct(t, map[string]any{
		"records": []any{
			map[string]any{"record": sampleRecord(), "history": sampleHistory()},
			map[string]any{"record": map[string]any{"key": "OPS-8", "fields": map[string]any{}}},
		},
		"category": "flow",
	}))
	require.NoError(t, err)

	results := resp.AsMap()["results"].([]any)
	require.Len(t, results, 2)

	first := results[0].(map[string]any)
	assert.Equal(t, "OPS-7", first["key"])
	values := first["values"].(map[string]any)
	assert.Equal(t, "defect", values["work_type"])
	assert.Equal(t, float64(2), values["status_changes"])
	assert.Equal(t, float64(7200), values["cycle_time"])
	assert.NotContains(t, values, "created_at", "common variables excluded by category")

	second := results[1].(map[string]any)
	assert.Equal(t, "OPS-8", second["key"])
	assert.Equal(t, float64(0), second["values"].(map[string]any)["status_changes"])

	t.Run("single record form", func(t *testing.T) {
		resp, err := client.ExtractAll(ctx, mustStruct(t, map[string]any{"record": sampleRecord()}))
		require.NoError(t, err)
		assert.Len(t, resp.AsMap()["results"].([]any), 1)
	})

	t.Run("batch limit", func(t *testing.T) {
		item := map[string]any{"record": sampleRecord()}
		_, err := client.ExtractAll(ctx, mustStruct(t, map[string]any{"records": []any{item, item, item}}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := client.ExtractAll(ctx, mustStruct(t, map[string]any{"record": sampleRecord(), "category": "sales"}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestParsePaths(t *testing.T) {
	client := startService(t, nil, testConfig())

	resp, err := client.ParsePaths(context.Background(), mustStruct(t, map[string]any{
		"paths": []any{"*.created", "bad..path", "OPS.status:Deployed.DateTime"},
	}))
	require.NoError(t, err)

	paths := resp.AsMap()["paths"].([]any)
	require.Len(t, paths, 3)

	first := paths[0].(map[string]any)
	assert.Equal(t, true, first["valid"])
	assert.Equal(t, "datetime", first["value_kind"])
	assert.Equal(t, float64(1), first["rule"].(map[string]any)["priority"])

	bad := paths[1].(map[string]any)
	assert.Equal(t, false, bad["valid"])
	assert.NotEmpty(t, bad["error"])

	third := paths[2].(map[string]any)
	rule := third["rule"].(map[string]any)
	assert.Equal(t, float64(2), rule["priority"], "invalid paths do not consume priorities")
	assert.Equal(t, "changelog_timestamp", rule["source"].(map[string]any)["kind"])
	assert.Equal(t, "OPS", rule["filters"].(map[string]any)["project"].([]any)[0])

	_, err = client.ParsePaths(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCustomerCollections(t *testing.T) {
	store := &memoryStore{collections: map[string]*types.Collection{}}
	client := startService(t, store, testConfig())

	overridden, err := catalog.ApplyOverrides(catalog.DefaultCollection(), catalog.Overrides{
		Version: "acme-v1",
		Paths:   map[string][]string{"created_at": {"*.updated"}},
	}, nil)
	require.NoError(t, err)
	store.put("acme", overridden)

	record := sampleRecord()
	record["fields"].(map[string]any)["updated"] = "2024-04-01T00:00:00.000+0000"
	req := mustStruct(t, map[string]any{"variable": "created_at", "record": record})

	asCustomer := func(id string) context.Context {
		return metadata.AppendToOutgoingContext(context.Background(), "x-customer", id)
	}

	resp, err := client.Extract(asCustomer("acme"), req)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01T00:00:00.000+0000", resp.AsMap()["value"])

	resp, err = client.Extract(asCustomer("globex"), req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:00:00.000+0000", resp.AsMap()["value"], "customer without a collection uses defaults")

	_, err = client.Extract(asCustomer("acme"), req)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads, "unchanged collection is compiled once")

	store.put("acme", catalog.DefaultCollection())
	resp, err = client.Extract(asCustomer("acme"), req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:00:00.000+0000", resp.AsMap()["value"])
	assert.Equal(t, 2, store.loads)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&types.RecursionLimitError{Variable: "a", Cycle: true}, codes.FailedPrecondition},
		{&types.ConfigurationError{Reason: "bad"}, codes.InvalidArgument},
		{&types.ParseError{Path: "x", Reason: "bad"}, codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Unavailable},
		{status.Error(codes.NotFound, "kept"), codes.NotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
	assert.NoError(t, toStatus(nil))
}
