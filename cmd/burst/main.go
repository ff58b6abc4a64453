// Command burst dispara rajadas de requests contra o servidor e imprime a
// distribuição de status por rota. Serve para ver o rate limit (429) e a
// exaustão do pool (503) acontecendo.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

type result struct {
	route  string
	status int
	took   time.Duration
}

type tally struct {
	mu      sync.Mutex
	byRoute map[string]map[int]int
	slowest map[string]time.Duration
}

func newTally() *tally {
	return &tally{byRoute: map[string]map[int]int{}, slowest: map[string]time.Duration{}}
}

func (t *tally) add(r result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byRoute[r.route] == nil {
		t.byRoute[r.route] = map[int]int{}
	}
	t.byRoute[r.route][r.status]++
	if r.took > t.slowest[r.route] {
		t.slowest[r.route] = r.took
	}
}

func (t *tally) print(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	routes := make([]string, 0, len(t.byRoute))
	for r := range t.byRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)

	for _, route := range routes {
		codes := t.byRoute[route]
		statuses := make([]int, 0, len(codes))
		for s := range codes {
			statuses = append(statuses, s)
		}
		sort.Ints(statuses)

		parts := make([]string, 0, len(statuses))
		for _, s := range statuses {
			label := fmt.Sprint(s)
			if s == 0 {
				label = "err"
			}
			parts = append(parts, fmt.Sprintf("%s=%d", label, codes[s]))
		}
		fmt.Fprintf(w, "%-8s %s (slowest %s)\n", route, strings.Join(parts, " "), t.slowest[route].Round(time.Millisecond))
	}
}

func main() {
	base := flag.String("url", "http://localhost:8080", "base URL do servidor")
	routes := flag.String("routes", "/normal,/pool,/pool2", "rotas separadas por vírgula")
	n := flag.Int("n", 30, "requests por rota")
	parallel := flag.Int("c", 15, "requests simultâneos")
	apiKey := flag.String("key", "", "valor do header X-Api-Key (vazio usa o IP)")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout por request")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: *timeout}
	t := newTally()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)

	start := time.Now()
	for _, route := range strings.Split(*routes, ",") {
		route = strings.TrimSpace(route)
		if route == "" {
			continue
		}
		for i := 0; i < *n; i++ {
			g.Go(func() error {
				t.add(hit(gctx, client, *base+route, route, *apiKey))
				return nil
			})
		}
	}
	_ = g.Wait()

	t.print(os.Stdout)
	fmt.Printf("total %s\n", time.Since(start).Round(time.Millisecond))
}

// hit faz um GET; status 0 representa erro de transporte.
func hit(ctx context.Context, client *http.Client, url, route, apiKey string) result {
	start := time.Now()
	res := result{route: route}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	res.took = time.Since(start)
	if err != nil {
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.status = resp.StatusCode
	return res
}
