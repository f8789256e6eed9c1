// simulate hammers the booking API with deliberately colliding requests and
// verifies afterwards, straight against Postgres, that no doctor ended up
// double-booked.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/careline/scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Requests    int
	Doctors     int
	Slots       int
	PostgresDSN string
}

type Metrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Percentile(p int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	patients, err := loadIDs(ctx, pgPool, "SELECT id FROM patients LIMIT 500")
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	doctors, err := loadIDs(ctx, pgPool, fmt.Sprintf("SELECT id FROM doctors LIMIT %d", cfg.Doctors))
	if err != nil {
		log.Fatalf("load doctors: %v", err)
	}
	if len(patients) == 0 || len(doctors) == 0 {
		log.Fatal("no seed data; run cmd/seed first")
	}
	log.Printf("loaded %d patients, %d doctors", len(patients), len(doctors))

	// A deliberately tiny slot pool so many requests collide on the same
	// (doctor, timestamp) pair.
	day := time.Now().UTC().AddDate(0, 0, 1)
	var slots []time.Time
	for i := 0; i < cfg.Slots; i++ {
		slots = append(slots, time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC).
			Add(time.Duration(i)*30*time.Minute))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	metrics := &Metrics{}

	start := time.Now()

	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.Workers)

	for i := 0; i < cfg.Requests; i++ {
		g.Go(func() error {
			patientID := patients[rand.Intn(len(patients))]
			doctorID := doctors[rand.Intn(len(doctors))]
			slot := slots[rand.Intn(len(slots))]

			status, latency, err := postBooking(gctx, client, cfg.APIBaseURL, patientID, doctorID, slot)
			if err != nil {
				atomic.AddInt64(&metrics.Total, 1)
				atomic.AddInt64(&metrics.Error, 1)
				return nil
			}
			metrics.Record(latency, status)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("simulation error: %v", err)
	}

	elapsed := time.Since(start)
	log.Printf("done in %s: total=%d success=%d conflict=%d error=%d",
		elapsed, metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	log.Printf("latency p50=%s p95=%s p99=%s",
		metrics.Percentile(50), metrics.Percentile(95), metrics.Percentile(99))

	if err := verifyNoDoubleBooking(ctx, pgPool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("invariant holds: no doctor is double-booked")
}

func postBooking(ctx context.Context, client *http.Client, baseURL string, patientID, doctorID uuid.UUID, slot time.Time) (int, time.Duration, error) {
	body, _ := json.Marshal(map[string]string{
		"patient_id":   patientID.String(),
		"doctor_id":    doctorID.String(),
		"scheduled_at": slot.Format(time.RFC3339),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, latency, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) error {
	var dupes int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT doctor_id, scheduled_at
			FROM appointments
			WHERE status <> 'cancelled'
			GROUP BY doctor_id, scheduled_at
			HAVING count(*) > 1
		) d
	`).Scan(&dupes)
	if err != nil {
		return err
	}
	if dupes > 0 {
		return fmt.Errorf("%d (doctor, timestamp) pairs hold more than one live booking", dupes)
	}
	return nil
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 50),
		Requests:    getEnvInt("SIM_REQUESTS", 2000),
		Doctors:     getEnvInt("SIM_DOCTORS", 5),
		Slots:       getEnvInt("SIM_SLOTS", 8),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
