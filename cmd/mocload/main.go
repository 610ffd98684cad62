// Command mocload drives synthetic MOC traffic against a running API: each
// worker creates a request, assesses its risk and walks it through the
// lifecycle.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/sim"
)

type stats struct {
	successes, failures, conflicts, rateLimited, serverErrors int64
}

func (s *stats) record(code int) {
	if code < 300 {
		return
	}
	atomic.AddInt64(&s.failures, 1)
	switch {
	case code == http.StatusConflict:
		atomic.AddInt64(&s.conflicts, 1)
	case code == http.StatusTooManyRequests:
		atomic.AddInt64(&s.rateLimited, 1)
		time.Sleep(250 * time.Millisecond)
	case code >= 500:
		atomic.AddInt64(&s.serverErrors, 1)
		time.Sleep(200 * time.Millisecond)
	}
}

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "API base URL")
		email    = flag.String("email", "carlos@oilgas.com", "Login email of a user allowed to manage MOCs and risk")
		workers  = flag.Int("workers", 4, "Concurrent worker count")
		duration = flag.Duration("duration", 2*time.Minute, "Duration of the run")
		seed     = flag.Int64("seed", 0, "Generator seed; 0 uses the clock")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("Launching load: base=%s workers=%d duration=%s", *baseURL, *workers, *duration)

	token, err := login(ctx, *baseURL, *email)
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	c := &client{base: *baseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}
	gen := sim.NewGenerator(*seed)

	var (
		counter sim.Counter
		st      stats
		wg      sync.WaitGroup
	)
	deadline := time.Now().Add(*duration)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) && ctx.Err() == nil {
				ch := gen.NextChange()
				if err := c.run(ctx, ch, &st); err != nil {
					if ctx.Err() == nil {
						log.Printf("worker %d: %v", id, err)
					}
					continue
				}
				atomic.AddInt64(&st.successes, 1)
				counter.Add(ch)
				time.Sleep(time.Duration(50+rnd.Intn(120)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	log.Printf("Run complete: %d success / %d failed calls (conflicts=%d, rate_limited=%d, server_errors=%d)",
		st.successes, st.failures, st.conflicts, st.rateLimited, st.serverErrors)
	log.Printf("Changes by tier: %s", counter.String())
}

type client struct {
	base  string
	token string
	http  *http.Client
}

// run creates one change and walks it; the first failing call aborts it.
func (c *client) run(ctx context.Context, ch sim.Change, st *stats) error {
	var created struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/mocs", ch.Draft, &created, st); err != nil {
		return err
	}
	path := "/v1/mocs/" + created.ID
	var assessed struct {
		MOC struct {
			Version int64 `json:"version"`
		} `json:"moc"`
	}
	err := c.call(ctx, http.MethodPut, path+"/risk", map[string]any{
		"probability": ch.Probability,
		"severity":    ch.Severity,
		"mitigation":  ch.Mitigation,
		"version":     created.Version,
	}, &assessed, st)
	if err != nil {
		return err
	}
	version := assessed.MOC.Version
	for _, to := range ch.Walk {
		var next struct {
			Version int64 `json:"version"`
		}
		if err := c.call(ctx, http.MethodPost, path+"/transitions", map[string]any{"to": to, "version": version}, &next, st); err != nil {
			return err
		}
		version = next.Version
	}
	return nil
}

func (c *client) call(ctx context.Context, method, path string, body, out any, st *stats) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := c.http.Do(req)
	if err != nil {
		atomic.AddInt64(&st.failures, 1)
		return err
	}
	defer resp.Body.Close()
	st.record(resp.StatusCode)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func login(ctx context.Context, baseURL, email string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("login endpoint: %s", resp.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("empty token returned")
	}
	return out.Token, nil
}
