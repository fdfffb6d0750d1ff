package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Race       OperationMetrics
	Book       OperationMetrics
	Reschedule OperationMetrics
	Cancel     OperationMetrics
	Slots      OperationMetrics
}

type Simulator struct {
	config   SimConfig
	fixtures *Fixtures
	client   *http.Client
	logger   zerolog.Logger
	metrics  Metrics

	mu     sync.Mutex
	booked []uuid.UUID
}

func (s *Simulator) addBooked(id uuid.UUID) {
	s.mu.Lock()
	s.booked = append(s.booked, id)
	s.mu.Unlock()
}

func (s *Simulator) randomBooked(rng *rand.Rand) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.booked) == 0 {
		return uuid.Nil, false
	}
	return s.booked[rng.IntN(len(s.booked))], true
}

// Race fires every contender at the first slot of the first day at once.
// Exactly one should get 201.
func (s *Simulator) Race(ctx context.Context) {
	date := schedule.FormatDate(s.fixtures.FirstDay)
	s.logger.Info().Int("contenders", s.config.Contenders).Str("date", date).Msg("race phase: same slot")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range s.config.Contenders {
		patient := s.fixtures.Patients[i%len(s.fixtures.Patients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, latency, _ := s.book(ctx, patient, date, "08:00")
			s.metrics.Race.Record(latency, status)
		}()
	}
	close(start)
	wg.Wait()
}

// Load runs a mixed workload across the configured days until Duration
// elapses.
func (s *Simulator) Load(ctx context.Context) {
	s.logger.Info().
		Dur("duration", s.config.Duration).
		Int("workers", s.config.Workers).
		Msg("load phase: mixed operations")

	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := range s.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, uint64(i))
		}()
	}
	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context, id uint64) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), id))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookRatio:
			s.doBook(ctx, rng)
		case r < s.config.BookRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < s.config.BookRatio+s.config.RescheduleRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doSlots(ctx, rng)
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) (string, string) {
	day := s.fixtures.FirstDay.AddDate(0, 0, rng.IntN(s.config.Days))
	at := schedule.NewClock(8, 0).Add(30 * rng.IntN(20))
	return schedule.FormatDate(day), at.String()
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	patient := s.fixtures.Patients[rng.IntN(len(s.fixtures.Patients))]
	date, at := s.randomSlot(rng)

	status, latency, id := s.book(ctx, patient, date, at)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Book.Record(latency, status)
	if status == http.StatusCreated {
		s.addBooked(id)
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.randomBooked(rng)
	if !ok {
		return
	}
	date, at := s.randomSlot(rng)
	status, latency, _ := s.send(ctx, http.MethodPost, "/appointments/"+id.String()+"/reschedule",
		api.RescheduleAppointmentRequest{Date: date, Time: at, Reason: "simulated move"})
	if ctx.Err() != nil {
		return
	}
	// moving a cancelled appointment is an expected 400
	if status == http.StatusBadRequest {
		status = http.StatusConflict
	}
	s.metrics.Reschedule.Record(latency, status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.randomBooked(rng)
	if !ok {
		return
	}
	status, latency, _ := s.send(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel",
		api.CancelAppointmentRequest{Reason: "simulated cancellation"})
	if ctx.Err() != nil {
		return
	}
	if status == http.StatusBadRequest {
		status = http.StatusConflict
	}
	s.metrics.Cancel.Record(latency, status)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	date, _ := s.randomSlot(rng)
	status, latency, _ := s.send(ctx, http.MethodGet,
		"/doctors/"+s.fixtures.DoctorID.String()+"/slots?date="+date, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(latency, status)
}

func (s *Simulator) book(ctx context.Context, patient uuid.UUID, date, at string) (int, time.Duration, uuid.UUID) {
	status, latency, body := s.send(ctx, http.MethodPost, "/appointments", api.BookAppointmentRequest{
		DoctorID:  s.fixtures.DoctorID.String(),
		PatientID: patient.String(),
		Date:      date,
		Time:      at,
		BookedBy:  "simulator",
	})
	if status != http.StatusCreated {
		return status, latency, uuid.Nil
	}

	var env api.AppointmentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.logger.Warn().Err(err).Msg("decode booking response")
		return status, latency, uuid.Nil
	}
	return status, latency, env.Appointment.ID
}

// send returns status 0 on transport errors.
func (s *Simulator) send(ctx context.Context, method, path string, payload any) (int, time.Duration, []byte) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, 0, nil
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, 0, nil
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, latency, raw
}

// Verify lists every simulated day and counts slots held by more than one
// active appointment.
func (s *Simulator) Verify(ctx context.Context) (int, error) {
	duplicates := 0
	for d := range s.config.Days {
		date := schedule.FormatDate(s.fixtures.FirstDay.AddDate(0, 0, d))
		status, _, body := s.send(ctx, http.MethodGet,
			"/doctors/"+s.fixtures.DoctorID.String()+"/appointments?date="+date, nil)
		if status != http.StatusOK {
			return duplicates, fmt.Errorf("list %s: status %d", date, status)
		}

		var list api.AppointmentListResponse
		if err := json.Unmarshal(body, &list); err != nil {
			return duplicates, fmt.Errorf("decode %s: %w", date, err)
		}

		held := make(map[string]int)
		for _, a := range list.Appointments {
			switch a.Status {
			case "SCHEDULED", "CONFIRMED", "IN_PROGRESS":
				held[a.Time]++
			}
		}
		for at, n := range held {
			if n > 1 {
				s.logger.Error().Str("date", date).Str("time", at).Int("holders", n).Msg("slot double-booked")
				duplicates++
			}
		}
	}
	return duplicates, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Duration: %s  Workers: %d  Contenders: %d\n", s.config.Duration, s.config.Workers, s.config.Contenders)
	fmt.Println()

	printOperationReport("Same-slot race", &s.metrics.Race)
	if won := atomic.LoadInt64(&s.metrics.Race.Success); won != 1 {
		fmt.Printf("  !! expected exactly one winner, got %d\n", won)
	}
	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Slots", &s.metrics.Slots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	failed := atomic.LoadInt64(&om.Error)

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if busy > 0 {
		fmt.Printf("  Busy/limited: %d (%.1f%%)\n", busy, pct(busy))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}

	avg, p50, p95, max := om.Stats()
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
	fmt.Println()
}
