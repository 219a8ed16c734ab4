package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Send(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"resultado":"benign"}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	s := NewHTTPSender(srv.URL, time.Second, logger)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), []byte(`{"ip":"10.0.0.1","data":[]}`)))
	assert.JSONEq(t, `{"ip":"10.0.0.1","data":[]}`, string(got))
}

func TestHTTPSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"verification failed"}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	err := NewHTTPSender(srv.URL, time.Second, logger).Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "verification failed")
}

func TestHTTPSender_Unreachable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewHTTPSender("http://127.0.0.1:1/api/v1/analyze", 200*time.Millisecond, logger)
	assert.Error(t, s.Send(context.Background(), []byte(`{}`)))
}

func TestHTTPSender_NonJSONReplyIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream down</html>"))
	}))
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	err := NewHTTPSender(srv.URL, time.Second, logger).Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "Analyzer reply is not JSON", entry.Message)
	assert.Equal(t, http.StatusBadGateway, entry.Data["status"])
	assert.NotNil(t, entry.Data[logrus.ErrorKey])
}
