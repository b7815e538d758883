package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/pkg/circuitbreaker"
)

var testWeek = time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

func testDoc() *report.WeeklyReportRecord {
	sched := schedule.Schedule{{Weekday: 1, Start: "09:00", End: "11:00"}}
	return report.InitializeWeek("s1", testWeek, sched)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL + "/")
	cfg.BreakerThreshold = 0
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg, student.StaticToken("tok"))
}

func TestClient_SubmitSendsReportWithHeaders(t *testing.T) {
	doc := testDoc()
	var (
		gotHeaders http.Header
		gotBody    report.WeeklyReportRecord
		gotPath    string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(`{"status_code":200,"data":{"accepted":true}}`))
	})

	require.NoError(t, c.Submit(context.Background(), doc))

	assert.Equal(t, "POST /api/v1/reports/weekly", gotPath)
	assert.Equal(t, "Bearer tok", gotHeaders.Get("Authorization"))
	assert.Equal(t, "2024-01-08", gotHeaders.Get("X-Week-Start"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.NotEmpty(t, gotHeaders.Get("Idempotency-Key"))
	assert.Equal(t, "s1", gotBody.StudentID)
	assert.True(t, gotBody.WeekStart.Equal(testWeek))
	assert.Len(t, gotBody.Days, 7)
}

func TestClient_IdempotencyKeyIsStablePerPayload(t *testing.T) {
	var keys []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusOK)
	})

	doc := testDoc()
	require.NoError(t, c.Submit(context.Background(), doc))
	require.NoError(t, c.Submit(context.Background(), doc))
	doc.SetSummary("changed")
	require.NoError(t, c.Submit(context.Background(), doc))

	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])
}

func TestClient_Fetch(t *testing.T) {
	doc := testDoc()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports/weekly/s1/2024/2", r.URL.Path)
		_ = json.NewEncoder(w).Encode(APIResponse[report.WeeklyReportRecord]{StatusCode: 200, Data: doc})
	})

	got, err := c.Fetch(context.Background(), "s1", 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.StudentID)
	assert.True(t, got.WeekStart.Equal(testWeek))
	assert.Len(t, got.Days, 7)
}

func TestClient_FetchNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code":404,"message":"no report"}`))
	})

	_, err := c.Fetch(context.Background(), "s1", 2024, 2)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, shared.IsRetryable(err))

	var remote *shared.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "no report", remote.Message)
}

func TestClient_FetchEmptyEnvelopeIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":200}`))
	})

	_, err := c.Fetch(context.Background(), "s1", 2024, 2)
	assert.True(t, shared.IsNotFound(err))
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
		auth      bool
	}{
		{"server error", http.StatusServiceUnavailable, true, false},
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"bad request", http.StatusBadRequest, false, false},
		{"unauthorized", http.StatusUnauthorized, false, true},
		{"forbidden", http.StatusForbidden, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})

			err := c.Submit(context.Background(), testDoc())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, shared.IsRetryable(err))
			assert.Equal(t, tt.auth, shared.IsAuth(err))
			assert.True(t, shared.IsTransport(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_MalformedResponseIsFinal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := c.Fetch(context.Background(), "s1", 2024, 2)
	require.Error(t, err)
	assert.False(t, shared.IsRetryable(err))
}

func TestClient_MissingTokenSkipsRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig(srv.URL), student.StaticToken(""))
	err := c.Submit(context.Background(), testDoc())

	assert.True(t, shared.IsAuth(err))
	assert.False(t, shared.IsRetryable(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

type failingTokens struct{}

func (failingTokens) AccessToken(context.Context) (string, error) {
	return "", errors.New("keychain locked")
}

func TestClient_TokenProviderErrorsAreAuthErrors(t *testing.T) {
	c := NewClient(DefaultClientConfig("http://127.0.0.1:1"), failingTokens{})
	_, err := c.FetchRelease(context.Background(), 7)
	assert.True(t, shared.IsAuth(err))
}

func TestClient_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := DefaultClientConfig(url)
	cfg.BreakerThreshold = 0
	c := NewClient(cfg, student.StaticToken("tok"))

	err := c.Submit(context.Background(), testDoc())
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
}

func TestClient_FetchRelease(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/releases/7", r.URL.Path)
		_, _ = w.Write([]byte(`{"status_code":200,"data":{"id":7,"version":"v3","program":{"id":1,"name":"Go","subjects":[{"id":10,"name":"Basics"}]}}}`))
	})

	env, err := c.FetchRelease(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, env.OK())
	assert.Equal(t, int64(7), env.Data.ID)
	assert.Equal(t, "v3", env.Data.Version)
	subject, ok := env.Data.Subject(10)
	require.True(t, ok)
	assert.Equal(t, "Basics", subject.Name)
}

func TestClient_FetchReleasePassesEnvelopeThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":500,"message":"release build pending"}`))
	})

	env, err := c.FetchRelease(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, env.OK())
	assert.Equal(t, "release build pending", env.Message)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, func(cfg *ClientConfig) {
		cfg.BreakerThreshold = 2
		cfg.BreakerTimeout = time.Hour
	})

	for i := 0; i < 2; i++ {
		require.Error(t, c.Submit(context.Background(), testDoc()))
	}
	err := c.Submit(context.Background(), testDoc())

	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, shared.IsTransport(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClient_BreakerIgnoresClientErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}, func(cfg *ClientConfig) {
		cfg.BreakerThreshold = 1
		cfg.BreakerTimeout = time.Hour
	})

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), "s1", 2024, 2)
		assert.True(t, shared.IsNotFound(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
