package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/facemood/internal/protocol"
)

type options struct {
	baseURL      string
	path         string
	token        string
	username     string
	sessions     int
	frames       int
	interval     time.Duration
	frameTimeout time.Duration
	images       []string
	verbose      bool
}

type result struct {
	latencies []time.Duration
	emotions  map[string]int
	errors    int
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfframes: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfframes: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var imagesRaw string
	fs := flag.NewFlagSet("perfframes", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "facemood base URL")
	fs.StringVar(&cfg.path, "path", "/", "websocket session path")
	fs.StringVar(&cfg.token, "token", "", "optional bearer token")
	fs.StringVar(&cfg.username, "username", "", "optional username sent with each frame")
	fs.IntVar(&cfg.sessions, "sessions", 4, "concurrent sessions")
	fs.IntVar(&cfg.frames, "frames", 25, "frames per session")
	fs.DurationVar(&cfg.interval, "interval", 100*time.Millisecond, "delay between frames in a session")
	fs.DurationVar(&cfg.frameTimeout, "frame-timeout", 10*time.Second, "timeout waiting for a prediction")
	fs.StringVar(&imagesRaw, "images", "", "comma separated image files (synthetic frames when empty)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print per-session progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.sessions <= 0 || cfg.sessions > 1000 {
		return options{}, fmt.Errorf("sessions must be in [1,1000]")
	}
	if cfg.frames <= 0 {
		return options{}, fmt.Errorf("frames must be > 0")
	}
	if cfg.interval < 0 {
		cfg.interval = 0
	}
	if cfg.frameTimeout < 100*time.Millisecond {
		cfg.frameTimeout = 100 * time.Millisecond
	}
	for _, part := range strings.Split(imagesRaw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			cfg.images = append(cfg.images, p)
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	payloads, err := loadPayloads(cfg.images)
	if err != nil {
		return err
	}
	target, err := wsURL(cfg.baseURL, cfg.path, cfg.token)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}

	fmt.Printf("perfframes: target=%s sessions=%d frames=%d interval=%s payloads=%d\n",
		target, cfg.sessions, cfg.frames, cfg.interval, len(payloads))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	results := make([]result, cfg.sessions)
	var wg sync.WaitGroup
	for i := 0; i < cfg.sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = replaySession(ctx, cfg, target, payloads, i)
		}(i)
	}
	wg.Wait()

	total := merge(results)
	report(total, time.Since(start))
	if len(total.latencies) == 0 {
		return errors.New("no predictions received")
	}
	return nil
}

func replaySession(ctx context.Context, cfg options, target string, payloads [][]byte, idx int) result {
	res := result{emotions: map[string]int{}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfframes: session %d dial: %v\n", idx, err)
		res.errors = cfg.frames
		return res
	}
	defer conn.Close()

	for i := 0; i < cfg.frames; i++ {
		payload := payloads[(idx+i)%len(payloads)]
		sent := time.Now()
		if err := conn.WriteMessage(websocket.TextMessage, withUsername(payload, cfg.username)); err != nil {
			fmt.Fprintf(os.Stderr, "perfframes: session %d send: %v\n", idx, err)
			res.errors += cfg.frames - i
			return res
		}
		label, err := awaitPrediction(conn, cfg.frameTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "perfframes: session %d frame %d: %v\n", idx, i+1, err)
			res.errors++
			continue
		}
		lat := time.Since(sent)
		res.latencies = append(res.latencies, lat)
		res.emotions[label]++
		if cfg.verbose {
			fmt.Printf("perfframes: session %d frame %d/%d emotion=%s latency=%s\n", idx, i+1, cfg.frames, label, lat.Round(time.Millisecond))
		}
		if cfg.interval > 0 && i < cfg.frames-1 {
			time.Sleep(cfg.interval)
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return res
}

// awaitPrediction reads until a prediction arrives, skipping keepalives.
func awaitPrediction(conn *websocket.Conn, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}
		var msg struct {
			Emotion string `json:"emotion"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if msg.Message == protocol.KeepaliveText {
			continue
		}
		if msg.Emotion == "" {
			return "", fmt.Errorf("unexpected response: %s", raw)
		}
		return msg.Emotion, nil
	}
}

func wsURL(baseURL, path, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func loadPayloads(paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		out := make([][]byte, 0, 4)
		for seed := 0; seed < 4; seed++ {
			p, err := syntheticPayload(seed)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
	out := make([][]byte, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		p, err := framePayload(mimeFor(path), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func framePayload(mime string, raw []byte) ([]byte, error) {
	return json.Marshal(protocol.Inbound{Data: protocol.InboundData{
		Image: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw),
	}})
}

func withUsername(payload []byte, username string) []byte {
	if username == "" {
		return payload
	}
	var msg protocol.Inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		return payload
	}
	msg.Data.Username = username
	out, err := json.Marshal(msg)
	if err != nil {
		return payload
	}
	return out
}

// syntheticPayload renders a 96x96 gradient so every seed yields a
// different mean color.
func syntheticPayload(seed int) ([]byte, error) {
	const size = 96
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*2 + seed*60) % 256),
				G: uint8((y*2 + seed*35) % 256),
				B: uint8((x + y + seed*90) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return framePayload("image/jpeg", buf.Bytes())
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}

func merge(results []result) result {
	out := result{emotions: map[string]int{}}
	for _, r := range results {
		out.latencies = append(out.latencies, r.latencies...)
		out.errors += r.errors
		for k, v := range r.emotions {
			out.emotions[k] += v
		}
	}
	return out
}

func report(r result, elapsed time.Duration) {
	sort.Slice(r.latencies, func(i, j int) bool { return r.latencies[i] < r.latencies[j] })
	n := len(r.latencies)
	fmt.Printf("perfframes: predictions=%d errors=%d elapsed=%s", n, r.errors, elapsed.Round(time.Millisecond))
	if n > 0 {
		fmt.Printf(" rate=%.1f/s", float64(n)/elapsed.Seconds())
	}
	fmt.Println()
	if n == 0 {
		return
	}
	fmt.Printf("perfframes: latency p50=%s p95=%s p99=%s max=%s\n",
		percentile(r.latencies, 0.50).Round(time.Microsecond*100),
		percentile(r.latencies, 0.95).Round(time.Microsecond*100),
		percentile(r.latencies, 0.99).Round(time.Microsecond*100),
		r.latencies[n-1].Round(time.Microsecond*100))

	labels := make([]string, 0, len(r.emotions))
	for k := range r.emotions {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	parts := make([]string, 0, len(labels))
	for _, k := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.emotions[k]))
	}
	fmt.Printf("perfframes: emotions %s\n", strings.Join(parts, " "))
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
