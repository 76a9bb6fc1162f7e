package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushVisitSendsPayload(t *testing.T) {
	var got VisitPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/visits", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-APIKEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"contactId":"aiq-77"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", time.Second)
	res, err := client.PushVisit(context.Background(), VisitPayload{
		Member: Member{CustomerID: "c-1", Name: "Dana"},
		Visit:  Visit{OrderNumber: "POS-DOW-20260101-1234", Total: 42.5},
	})

	require.NoError(t, err)
	assert.Equal(t, "aiq-77", res.ContactID)
	assert.Equal(t, "c-1", got.Member.CustomerID)
	assert.Equal(t, 42.5, got.Visit.Total)
}

func TestPushVisitReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).PushVisit(context.Background(), VisitPayload{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rate limited")
}

func TestPushVisitHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 20*time.Millisecond).PushVisit(context.Background(), VisitPayload{})
	assert.Error(t, err)
}
