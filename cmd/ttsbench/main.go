package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/ttsproxy/internal/audio"
	"github.com/ent0n29/ttsproxy/internal/config"
	"github.com/ent0n29/ttsproxy/internal/protocol"
)

type options struct {
	baseURL     string
	secret      string
	texts       []string
	rates       []int
	repeats     int
	useWS       bool
	outDir      string
	timeout     time.Duration
	verbose     bool
	interDelay  time.Duration
	requestWait time.Duration
}

type sample struct {
	Text       string
	SampleRate int
	Attempt    int
	Latency    time.Duration
	Bytes      int
	CacheHit   bool
	Status     int
}

type webhookMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	SampleRate int    `json:"sampleRate"`
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttsbench: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ttsbench: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("ttsbench", flag.ContinueOnError)
	var cfg options
	var textsRaw, ratesRaw string
	var timeoutMS, interMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "proxy base URL")
	fs.StringVar(&cfg.secret, "secret", os.Getenv("VAPI_SECRET"), "shared secret sent as x-vapi-secret")
	fs.StringVar(&textsRaw, "texts", "", "phrases separated by '|' (default: built-in greetings)")
	fs.StringVar(&ratesRaw, "rates", "24000", "comma separated sample rates")
	fs.IntVar(&cfg.repeats, "repeats", 2, "requests per phrase and rate; the first is usually a cache miss")
	fs.BoolVar(&cfg.useWS, "ws", false, "use the websocket endpoint instead of HTTP POST")
	fs.StringVar(&cfg.outDir, "out", "", "optional directory to write one WAV per phrase and rate")
	fs.IntVar(&timeoutMS, "timeout-ms", 35000, "per-request client timeout in milliseconds")
	fs.IntVar(&interMS, "inter-ms", 0, "delay between requests in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print every request")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.repeats <= 0 {
		return options{}, fmt.Errorf("repeats must be > 0")
	}
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	if interMS < 0 {
		interMS = 0
	}
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	cfg.interDelay = time.Duration(interMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), config.DefaultWarmupPhrases...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty phrases")
		}
	}

	for _, part := range strings.Split(ratesRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rate, err := strconv.Atoi(part)
		if err != nil || !protocol.IsSupportedSampleRate(rate) {
			return options{}, fmt.Errorf("unsupported rate %q (supported: %v)", part, protocol.SupportedSampleRates)
		}
		cfg.rates = append(cfg.rates, rate)
	}
	if len(cfg.rates) == 0 {
		return options{}, fmt.Errorf("rates produced no sample rates")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	var (
		samples []sample
		err     error
	)
	if cfg.useWS {
		samples, err = runWS(ctx, cfg, out)
	} else {
		samples, err = runHTTP(ctx, cfg, out)
	}
	if err != nil {
		return err
	}
	printSummary(out, samples)
	return nil
}

func runHTTP(ctx context.Context, cfg options, out io.Writer) ([]sample, error) {
	client := &http.Client{Timeout: cfg.timeout}
	var samples []sample
	for _, rate := range cfg.rates {
		for _, text := range cfg.texts {
			for attempt := 1; attempt <= cfg.repeats; attempt++ {
				s, pcm, err := postVoiceRequest(ctx, client, cfg, text, rate)
				if err != nil {
					return nil, err
				}
				s.Attempt = attempt
				samples = append(samples, s)
				logSample(out, cfg, s)
				if attempt == 1 {
					if err := writeClip(cfg.outDir, len(samples), rate, pcm); err != nil {
						return nil, err
					}
				}
				sleep(ctx, cfg.interDelay)
			}
		}
	}
	return samples, nil
}

func postVoiceRequest(ctx context.Context, client *http.Client, cfg options, text string, rate int) (sample, []byte, error) {
	body, err := webhookBody(text, rate)
	if err != nil {
		return sample{}, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/synthesize", bytes.NewReader(body))
	if err != nil {
		return sample{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.secret != "" {
		req.Header.Set("x-vapi-secret", cfg.secret)
	}

	started := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return sample{}, nil, fmt.Errorf("synthesize %q: %w", text, err)
	}
	defer res.Body.Close()
	payload, err := io.ReadAll(res.Body)
	latency := time.Since(started)
	if err != nil {
		return sample{}, nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "audio/l16") {
		return sample{}, nil, fmt.Errorf("synthesize %q: status %d: %s", text, res.StatusCode, strings.TrimSpace(string(payload)))
	}
	return sample{
		Text:       text,
		SampleRate: rate,
		Latency:    latency,
		Bytes:      len(payload),
		CacheHit:   res.Header.Get("X-Cache") == "HIT",
		Status:     res.StatusCode,
	}, payload, nil
}

func runWS(ctx context.Context, cfg options, out io.Writer) ([]sample, error) {
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if cfg.secret != "" {
		header.Set("x-vapi-secret", cfg.secret)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	var samples []sample
	for _, rate := range cfg.rates {
		for _, text := range cfg.texts {
			for attempt := 1; attempt <= cfg.repeats; attempt++ {
				body, err := webhookBody(text, rate)
				if err != nil {
					return nil, err
				}
				started := time.Now()
				_ = conn.SetWriteDeadline(started.Add(cfg.timeout))
				if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
					return nil, fmt.Errorf("write frame: %w", err)
				}
				_ = conn.SetReadDeadline(started.Add(cfg.timeout))
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					return nil, fmt.Errorf("read frame: %w", err)
				}
				if msgType != websocket.BinaryMessage {
					return nil, fmt.Errorf("synthesize %q: %s", text, strings.TrimSpace(string(data)))
				}
				s := sample{
					Text:       text,
					SampleRate: rate,
					Attempt:    attempt,
					Latency:    time.Since(started),
					Bytes:      len(data),
					CacheHit:   attempt > 1,
					Status:     http.StatusOK,
				}
				samples = append(samples, s)
				logSample(out, cfg, s)
				if attempt == 1 {
					if err := writeClip(cfg.outDir, len(samples), rate, data); err != nil {
						return nil, err
					}
				}
				sleep(ctx, cfg.interDelay)
			}
		}
	}
	return samples, nil
}

func webhookBody(text string, rate int) ([]byte, error) {
	return json.Marshal(map[string]webhookMessage{
		"message": {Type: string(protocol.TypeVoiceRequest), Text: text, SampleRate: rate},
	})
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/synthesize/ws"
	return u.String(), nil
}

func writeClip(dir string, index, rate int, pcm []byte) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("clip_%02d_%d.wav", index, rate))
	return audio.WriteWAVPCM16LEFile(path, pcm, rate)
}

func logSample(out io.Writer, cfg options, s sample) {
	if !cfg.verbose {
		return
	}
	cacheState := "MISS"
	if s.CacheHit {
		cacheState = "HIT"
	}
	fmt.Fprintf(out, "%-4s rate=%-5d try=%d latency=%-8s bytes=%-7d audio=%s text=%q\n",
		cacheState, s.SampleRate, s.Attempt, s.Latency.Round(time.Millisecond), s.Bytes, audioDuration(s.Bytes, s.SampleRate), s.Text)
}

// audioDuration is the playback length of 16-bit mono PCM.
func audioDuration(bytes, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return (time.Duration(bytes/2) * time.Second / time.Duration(rate)).Round(time.Millisecond)
}

type latencySummary struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return latencySummary{
		Count: len(sorted),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		Max:   sorted[len(sorted)-1],
	}
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printSummary(out io.Writer, samples []sample) {
	var cold, warm []time.Duration
	for _, s := range samples {
		if s.CacheHit {
			warm = append(warm, s.Latency)
		} else {
			cold = append(cold, s.Latency)
		}
	}
	for _, row := range []struct {
		name string
		lat  []time.Duration
	}{{"miss", cold}, {"hit", warm}} {
		sum := summarize(row.lat)
		fmt.Fprintf(out, "%-4s n=%-3d p50=%-8s p95=%-8s max=%s\n",
			row.name, sum.Count, sum.P50.Round(time.Millisecond), sum.P95.Round(time.Millisecond), sum.Max.Round(time.Millisecond))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
