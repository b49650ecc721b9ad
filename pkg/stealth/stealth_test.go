package stealth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
)

func TestRandomFingerprintFromPools(t *testing.T) {
	fp := RandomFingerprint()

	assert.Contains(t, userAgents, fp.UserAgent)
	assert.Contains(t, acceptLanguages, fp.AcceptLanguage)
	assert.Contains(t, screenResolutions, fp.ScreenResolution)
	assert.Contains(t, platforms, fp.Platform)
	assert.Contains(t, timeZones, fp.TimeZone)
	assert.Equal(t, 24, fp.ColorDepth)
	assert.Contains(t, []string{"0", "1"}, fp.DoNotTrack)
}

func TestRandomFingerprintForFamily(t *testing.T) {
	for i := 0; i < 20; i++ {
		fp := RandomFingerprintFor("firefox")
		assert.Contains(t, fp.UserAgent, "Firefox/")
	}
	for i := 0; i < 20; i++ {
		fp := RandomFingerprintFor("safari")
		assert.Contains(t, fp.UserAgent, "Safari")
		assert.NotContains(t, fp.UserAgent, "Chrome")
	}
}

func TestFingerprintHeaders(t *testing.T) {
	fp := RandomFingerprint()
	h := fp.Headers()

	assert.Equal(t, fp.UserAgent, h.Get("User-Agent"))
	assert.Equal(t, fp.AcceptLanguage, h.Get("Accept-Language"))
	assert.Equal(t, fp.DoNotTrack, h.Get("DNT"))
	assert.Equal(t, strings.SplitN(fp.ScreenResolution, "x", 2)[0], h.Get("Viewport-Width"))
}

func TestTypingDelaysPerCharacter(t *testing.T) {
	b := NewBehavior(DefaultBehaviorConfig())
	delays := b.TypingDelays("user123!")

	require.Len(t, delays, 8)
	for _, d := range delays {
		assert.Greater(t, d, time.Duration(0))
		assert.Less(t, d, 2*time.Second)
	}
}

func TestDelaysHonorCancellation(t *testing.T) {
	b := NewBehavior(BehaviorConfig{
		PreRequestMin: time.Hour,
		PreRequestMax: time.Hour + time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.PreRequestDelay(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientInjectsFingerprintHeaders(t *testing.T) {
	var gotUA, gotLang string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
	}))
	defer ts.Close()

	inner, err := httpclient.New("")
	require.NoError(t, err)

	fast := NewBehavior(BehaviorConfig{}) // zero delays
	c := NewClient(inner).WithBehavior(fast)

	_, err = c.Do(context.Background(), http.MethodGet, ts.URL, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, c.Fingerprint().UserAgent, gotUA)
	assert.Equal(t, c.Fingerprint().AcceptLanguage, gotLang)
}

func TestClientCallerHeadersWin(t *testing.T) {
	var gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Accept")
	}))
	defer ts.Close()

	inner, err := httpclient.New("")
	require.NoError(t, err)
	c := NewClient(inner).WithBehavior(NewBehavior(BehaviorConfig{}))

	headers := http.Header{}
	headers.Set("Accept", "application/json")

	_, err = c.Do(context.Background(), http.MethodGet, ts.URL, headers, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
}
