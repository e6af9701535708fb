package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func TestResourceAttributes(t *testing.T) {
	tests := []struct {
		name  string
		in    RunResource
		want  map[attribute.Key]attribute.Value
		count bool
	}{
		{
			name: "with commits",
			in:   RunResource{Repository: "octo/repo", RunID: 99, HeadBranch: "main", CommitCount: 3},
			want: map[attribute.Key]attribute.Value{
				"service.name":         attribute.StringValue("octo/repo"),
				"workflow_run_id":      attribute.Int64Value(99),
				"github.source":        attribute.StringValue("github-exporter"),
				"github.resource.type": attribute.StringValue("span"),
				"head_branch":          attribute.StringValue("main"),
				"commit_count":         attribute.IntValue(3),
			},
			count: true,
		},
		{
			name: "no branch and no commits",
			in:   RunResource{Repository: "octo/repo", RunID: 1},
			want: map[attribute.Key]attribute.Value{
				"head_branch": attribute.StringValue(UnknownBranch),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[attribute.Key]attribute.Value{}
			for _, kv := range ResourceAttributes(tt.in) {
				got[kv.Key] = kv.Value
			}
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], "attribute %s", k)
			}
			_, hasCount := got["commit_count"]
			assert.Equal(t, tt.count, hasCount)
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    endpoint
		wantErr bool
	}{
		{name: "https", raw: "https://otlp.nr-data.net", want: endpoint{host: "otlp.nr-data.net"}},
		{name: "https with port", raw: "https://otlp.eu01.nr-data.net:4318", want: endpoint{host: "otlp.eu01.nr-data.net:4318"}},
		{name: "http with path", raw: "http://collector:4318/otlp/", want: endpoint{host: "collector:4318", path: "/otlp", insecure: true}},
		{name: "bare host", raw: "collector:4318", want: endpoint{host: "collector:4318", insecure: true}},
		{name: "empty", raw: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProvidersAttachesResource(t *testing.T) {
	res := resource.NewSchemaless(ResourceAttributes(RunResource{Repository: "octo/repo", RunID: 5})...)
	sr := tracetest.NewSpanRecorder()
	exp := &memoryExporter{}
	p := NewProviders(res, sr, sdklog.NewSimpleProcessor(exp))

	ctx, span := p.Tracer().Start(context.Background(), "workflow")
	var rec otellog.Record
	rec.SetBody(otellog.StringValue("hello"))
	p.Logger().Emit(ctx, rec)
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	v, ok := spans[0].Resource().Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "octo/repo", v.AsString())

	require.Len(t, exp.records, 1)
	logRes := exp.records[0].Resource()
	v, ok = logRes.Set().Value("workflow_run_id")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.AsInt64())
	assert.Equal(t, spans[0].SpanContext().SpanID(), exp.records[0].SpanID())
}

func TestSetupExportsOverHTTP(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path] = r.Header.Get("api-key")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := Setup(context.Background(), Settings{Endpoint: server.URL, LicenseKey: "license"}, nil)
	require.NoError(t, err)

	ctx, span := p.Tracer().Start(context.Background(), "workflow")
	var rec otellog.Record
	rec.SetBody(otellog.StringValue("line"))
	p.Logger().Emit(ctx, rec)
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "license", paths["/v1/traces"])
	assert.Equal(t, "license", paths["/v1/logs"])
}

func TestSetupRejectsEmptyEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Settings{}, nil)
	assert.Error(t, err)
}
