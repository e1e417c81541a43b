package netstatus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Transition) Transition {
	t.Helper()
	select {
	case tr, ok := <-ch:
		require.True(t, ok, "channel closed")
		return tr
	case <-time.After(time.Second):
		t.Fatal("no transition received")
		return Transition{}
	}
}

func TestMonitor_SetNotifiesOnChangeOnly(t *testing.T) {
	m := NewMonitor(false, nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	m.Set(true)

	assert.True(t, m.IsOnline())
	assert.True(t, receive(t, ch).Online)

	select {
	case tr := <-ch:
		t.Fatalf("unexpected transition %+v", tr)
	default:
	}
}

func TestMonitor_SlowSubscriberSeesLatest(t *testing.T) {
	m := NewMonitor(false, nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(true)
	m.Set(false)
	m.Set(true)

	assert.True(t, receive(t, ch).Online)
}

func TestMonitor_CancelClosesChannel(t *testing.T) {
	m := NewMonitor(true, nil)
	ch, cancel := m.Subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	m.Set(false) // must not panic on a closed subscriber
}

func TestProber_AnyHTTPResponseIsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProber(NewMonitor(false, nil), srv.URL+"/health", time.Hour, time.Second, nil)
	assert.True(t, p.Probe(t.Context()))
}

func TestProber_TransportFailureIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(NewMonitor(true, nil), url, time.Hour, time.Second, nil)
	assert.False(t, p.Probe(t.Context()))
}

func TestProber_RunUpdatesMonitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(false, nil)
	ch, cancelSub := m.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		NewProber(m, srv.URL, 10*time.Millisecond, time.Second, nil).Run(ctx)
		close(done)
	}()

	assert.True(t, receive(t, ch).Online)

	srv.Close()
	assert.False(t, receive(t, ch).Online)

	cancel()
	<-done
}
