// Package stealth makes the bot's traffic look like a browser: randomized
// fingerprints and human-paced request timing. It changes observable
// behavior only, never protocol logic.
package stealth

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
)

// Fingerprint aggregates the browser identity signals sent with each request.
type Fingerprint struct {
	UserAgent           string
	AcceptLanguage      string
	ScreenResolution    string
	Platform            string
	Vendor              string
	ColorDepth          int
	PixelRatio          float64
	HardwareConcurrency int
	TimeZone            string
	DoNotTrack          string
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-SG,en;q=0.9,zh;q=0.8",
	"en-MY,en;q=0.9,ms;q=0.8",
}

var screenResolutions = []string{
	"1920x1080", "2560x1440", "1366x768", "1536x864", "1440x900", "3840x2160",
}

var platforms = []string{"Win32", "MacIntel", "Linux x86_64"}

var vendors = []string{"Google Inc.", "Apple Computer, Inc.", ""}

var timeZones = []string{
	"America/New_York", "Europe/London", "Asia/Singapore", "Asia/Kuala_Lumpur", "Asia/Manila",
}

var concurrencies = []int{4, 8, 12, 16}

var pixelRatios = []float64{1.0, 1.25, 1.5, 2.0}

// RandomFingerprint draws a fingerprint uniformly from the pools.
func RandomFingerprint() Fingerprint {
	dnt := "1"
	if rand.Intn(2) == 0 {
		dnt = "0"
	}
	return Fingerprint{
		UserAgent:           userAgents[rand.Intn(len(userAgents))],
		AcceptLanguage:      acceptLanguages[rand.Intn(len(acceptLanguages))],
		ScreenResolution:    screenResolutions[rand.Intn(len(screenResolutions))],
		Platform:            platforms[rand.Intn(len(platforms))],
		Vendor:              vendors[rand.Intn(len(vendors))],
		ColorDepth:          24,
		PixelRatio:          pixelRatios[rand.Intn(len(pixelRatios))],
		HardwareConcurrency: concurrencies[rand.Intn(len(concurrencies))],
		TimeZone:            timeZones[rand.Intn(len(timeZones))],
		DoNotTrack:          dnt,
	}
}

// RandomFingerprintFor biases the user-agent pool toward a browser family
// ("chrome", "firefox", "safari"). Unknown families fall back to the full pool.
func RandomFingerprintFor(family string) Fingerprint {
	fp := RandomFingerprint()

	var matches []string
	needle := strings.ToLower(family)
	for _, ua := range userAgents {
		lower := strings.ToLower(ua)
		switch needle {
		case "chrome":
			if strings.Contains(lower, "chrome/") {
				matches = append(matches, ua)
			}
		case "firefox":
			if strings.Contains(lower, "firefox/") {
				matches = append(matches, ua)
			}
		case "safari":
			if strings.Contains(lower, "safari") && !strings.Contains(lower, "chrome") {
				matches = append(matches, ua)
			}
		}
	}
	if len(matches) > 0 {
		fp.UserAgent = matches[rand.Intn(len(matches))]
	}
	return fp
}

// Headers renders the fingerprint as outbound HTTP headers.
func (f Fingerprint) Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", f.UserAgent)
	h.Set("Accept-Language", f.AcceptLanguage)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", f.DoNotTrack)
	h.Set("Sec-Ch-Ua-Platform", f.Platform)
	h.Set("Viewport-Width", strings.SplitN(f.ScreenResolution, "x", 2)[0])
	h.Set("Device-Memory", fmt.Sprintf("%d", f.HardwareConcurrency))
	return h
}
