package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeService(t *testing.T, readyAfter int32, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "test-key", r.PostForm.Get("key"))
			_, _ = w.Write([]byte("OK|12345"))
		case "/res.php":
			assert.Equal(t, "get", r.URL.Query().Get("action"))
			assert.Equal(t, "12345", r.URL.Query().Get("id"))
			if polls.Add(1) < readyAfter {
				_, _ = w.Write([]byte("CAPCHA_NOT_READY"))
				return
			}
			_, _ = w.Write([]byte(answer))
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &polls
}

func fastRemote(t *testing.T, base string) *Remote {
	t.Helper()
	r, err := NewRemote("test-key")
	require.NoError(t, err)
	return r.WithBaseURL(base).WithPolling(time.Millisecond, 10)
}

func TestSolveRecaptchaV2PollsUntilReady(t *testing.T) {
	ts, polls := fakeService(t, 3, "OK|solved-token")
	r := fastRemote(t, ts.URL)

	token, err := r.SolveRecaptchaV2(context.Background(), "site-key", "https://shop.test/checkout")
	require.NoError(t, err)
	assert.Equal(t, "solved-token", token)
	assert.Equal(t, int32(3), polls.Load())
}

func TestSolveSubmitsV2Params(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "userrecaptcha", r.PostForm.Get("method"))
			assert.Equal(t, "site-key", r.PostForm.Get("googlekey"))
			assert.Equal(t, "https://shop.test/checkout", r.PostForm.Get("pageurl"))
			_, _ = w.Write([]byte("OK|1"))
		case "/res.php":
			_, _ = w.Write([]byte("OK|tok"))
		}
	}))
	defer ts.Close()

	token, err := fastRemote(t, ts.URL).SolveRecaptchaV2(context.Background(), "site-key", "https://shop.test/checkout")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestSolveRecaptchaV3Params(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "v3", r.PostForm.Get("version"))
			assert.Equal(t, "verify", r.PostForm.Get("action"))
			assert.Equal(t, "0.3", r.PostForm.Get("min_score"))
			_, _ = w.Write([]byte("OK|1"))
		case "/res.php":
			_, _ = w.Write([]byte("OK|v3-token"))
		}
	}))
	defer ts.Close()

	token, err := fastRemote(t, ts.URL).SolveRecaptchaV3(context.Background(), "k", "https://shop.test", "verify", 0.3)
	require.NoError(t, err)
	assert.Equal(t, "v3-token", token)
}

func TestSolveImageSendsBase64(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "base64", r.PostForm.Get("method"))
			assert.NotEmpty(t, r.PostForm.Get("body"))
			_, _ = w.Write([]byte("OK|1"))
		case "/res.php":
			_, _ = w.Write([]byte("OK|img-token"))
		}
	}))
	defer ts.Close()

	token, err := fastRemote(t, ts.URL).SolveImage(context.Background(), []byte{0x89, 0x50})
	require.NoError(t, err)
	assert.Equal(t, "img-token", token)
}

func TestSubmitRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ERROR_WRONG_USER_KEY"))
	}))
	defer ts.Close()

	_, err := fastRemote(t, ts.URL).SolveRecaptchaV2(context.Background(), "k", "u")
	assert.ErrorIs(t, err, ErrSubmitFailed)
}

func TestSolveFailedAnswer(t *testing.T) {
	ts, _ := fakeService(t, 1, "ERROR_CAPTCHA_UNSOLVABLE")
	_, err := fastRemote(t, ts.URL).SolveRecaptchaV2(context.Background(), "k", "u")
	assert.ErrorIs(t, err, ErrSolveFailed)
}

func TestSolveTimesOutAfterMaxPolls(t *testing.T) {
	ts, polls := fakeService(t, 1000, "")
	r := fastRemote(t, ts.URL).WithPolling(time.Millisecond, 4)

	_, err := r.SolveRecaptchaV2(context.Background(), "k", "u")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(4), polls.Load())
}

func TestSolveHonorsContextCancellation(t *testing.T) {
	ts, _ := fakeService(t, 1000, "")
	r := fastRemote(t, ts.URL).WithPolling(time.Hour, 60)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.SolveRecaptchaV2(ctx, "k", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockSolver(t *testing.T) {
	m := NewMock("canned")
	token, err := m.SolveRecaptchaV2(context.Background(), "k", "u")
	require.NoError(t, err)
	assert.Equal(t, "canned", token)
}
