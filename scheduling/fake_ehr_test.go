package scheduling

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
	"github.com/jonwraymond/schedgate/resilience"
)

const (
	fhirPrefix     = "/apis/default/fhir/"
	standardPrefix = "/apis/default/api/"
)

// fakeEHR is an in-memory FHIR server with fault injection.
type fakeEHR struct {
	*httptest.Server

	mu         sync.Mutex
	validToken string
	appts      map[string]map[string]json.RawMessage
	slots      []fhir.Slot
	schedules  []fhir.Schedule
	nextID     int
	calls      map[string]int
	bearers    []string
	cancels    []map[string]string
	pageSize   int
	emptyPost  bool

	// fail, when set, may short-circuit a request with a status code.
	fail func(r *http.Request) int
}

func newFakeEHR(t *testing.T) *fakeEHR {
	t.Helper()
	f := &fakeEHR{
		validToken: "tok-1",
		appts:      map[string]map[string]json.RawMessage{},
		calls:      map[string]int{},
		pageSize:   100,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEHR) setFail(fn func(r *http.Request) int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeEHR) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

func (f *fakeEHR) addAppointment(t *testing.T, id, practitionerID, status string, start time.Time, minutes int) {
	t.Helper()
	end := start.Add(time.Duration(minutes) * time.Minute)
	a := fhir.Appointment{
		ResourceType: "Appointment",
		ID:           id,
		Status:       status,
		Start:        &start,
		End:          &end,
		Participant: []fhir.AppointmentParticipant{
			participant("Patient", "pat-"+id),
			participant("Practitioner", practitionerID),
		},
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.appts[id] = raw
	f.mu.Unlock()
}

func (f *fakeEHR) addSlot(id, practitionerID string, start time.Time, minutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scheduleID := "sch-" + practitionerID
	found := false
	for _, s := range f.schedules {
		if s.ID == scheduleID {
			found = true
		}
	}
	if !found {
		f.schedules = append(f.schedules, fhir.Schedule{
			ResourceType: "Schedule",
			ID:           scheduleID,
			Actor:        []fhir.Reference{{Reference: fhir.FormatReference("Practitioner", practitionerID)}},
		})
	}
	f.slots = append(f.slots, fhir.Slot{
		ResourceType: "Slot",
		ID:           id,
		Schedule:     fhir.Reference{Reference: fhir.FormatReference("Schedule", scheduleID)},
		Status:       fhir.SlotFree,
		Start:        start,
		End:          start.Add(time.Duration(minutes) * time.Minute),
	})
}

func (f *fakeEHR) cancellations() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.cancels...)
}

func (f *fakeEHR) stored(id string) map[string]json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appts[id]
}

func (f *fakeEHR) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.Method+" "+r.URL.Path]++
	f.bearers = append(f.bearers, r.Header.Get("Authorization"))
	valid := f.validToken
	fail := f.fail
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		writeOutcome(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if fail != nil {
		if status := fail(r); status != 0 {
			writeOutcome(w, status, "injected failure")
			return
		}
	}

	switch {
	case strings.HasPrefix(r.URL.Path, fhirPrefix):
		f.serveFHIR(w, r, strings.TrimPrefix(r.URL.Path, fhirPrefix))
	case strings.HasPrefix(r.URL.Path, standardPrefix):
		f.serveStandard(w, r, strings.TrimPrefix(r.URL.Path, standardPrefix))
	default:
		writeOutcome(w, http.StatusNotFound, "no route")
	}
}

func (f *fakeEHR) serveFHIR(w http.ResponseWriter, r *http.Request, rest string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case rest == "Appointment" && r.Method == http.MethodGet:
		f.searchAppointments(w, r)
	case rest == "Appointment" && r.Method == http.MethodPost:
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeOutcome(w, http.StatusBadRequest, err.Error())
			return
		}
		f.nextID++
		id := "appt-" + strconv.Itoa(f.nextID)
		raw["id"], _ = json.Marshal(id)
		f.appts[id] = raw
		w.Header().Set("Location", f.URL+fhirPrefix+"Appointment/"+id+"/_history/1")
		if f.emptyPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		writeJSON(w, http.StatusCreated, raw)
	case strings.HasPrefix(rest, "Appointment/"):
		id := strings.TrimPrefix(rest, "Appointment/")
		raw, ok := f.appts[id]
		if !ok {
			writeOutcome(w, http.StatusNotFound, "Resource Appointment/"+id+" not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, raw)
		case http.MethodPut:
			var next map[string]json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
				writeOutcome(w, http.StatusBadRequest, err.Error())
				return
			}
			f.appts[id] = next
			writeJSON(w, http.StatusOK, next)
		case http.MethodDelete:
			delete(f.appts, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			writeOutcome(w, http.StatusMethodNotAllowed, r.Method)
		}
	case rest == "Slot" && r.Method == http.MethodGet:
		f.searchSlots(w, r)
	default:
		writeOutcome(w, http.StatusNotFound, "no route")
	}
}

func (f *fakeEHR) searchAppointments(w http.ResponseWriter, r *http.Request) {
	want := r.URL.Query().Get("practitioner")
	ids := make([]string, 0, len(f.appts))
	for id := range f.appts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var matched []any
	for _, id := range ids {
		raw := f.appts[id]
		data, _ := json.Marshal(raw)
		var a fhir.Appointment
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		if want != "" && !slices.Contains(a.ActorReferences(), want) {
			continue
		}
		matched = append(matched, raw)
	}
	f.writePage(w, r, matched)
}

func (f *fakeEHR) searchSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to time.Time
	for _, v := range q["start"] {
		switch {
		case strings.HasPrefix(v, "ge"):
			from, _ = time.Parse(time.RFC3339, strings.TrimPrefix(v, "ge"))
		case strings.HasPrefix(v, "lt"):
			to, _ = time.Parse(time.RFC3339, strings.TrimPrefix(v, "lt"))
		}
	}
	actor := q.Get("schedule.actor")

	schedules := map[string]fhir.Schedule{}
	for _, s := range f.schedules {
		if actor == "" || (len(s.Actor) > 0 && s.Actor[0].Reference == actor) {
			schedules[fhir.FormatReference("Schedule", s.ID)] = s
		}
	}

	var matched []any
	used := map[string]bool{}
	for _, s := range f.slots {
		if _, ok := schedules[s.Schedule.Reference]; !ok {
			continue
		}
		if !from.IsZero() && s.Start.Before(from) {
			continue
		}
		if !to.IsZero() && !s.Start.Before(to) {
			continue
		}
		matched = append(matched, s)
		used[s.Schedule.Reference] = true
	}
	for ref := range used {
		matched = append(matched, schedules[ref])
	}
	f.writePage(w, r, matched)
}

// writePage returns one page of resources with a next link when more remain.
func (f *fakeEHR) writePage(w http.ResponseWriter, r *http.Request, resources []any) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("_page"))
	lo := min(page*f.pageSize, len(resources))
	hi := min(lo+f.pageSize, len(resources))

	bundle, err := fhir.NewSearchBundle(resources[lo:hi]...)
	if err != nil {
		writeOutcome(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hi < len(resources) {
		q.Set("_page", strconv.Itoa(page+1))
		next := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
		bundle.Link = append(bundle.Link, fhir.BundleLink{Relation: "next", URL: f.URL + next.String()})
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (f *fakeEHR) serveStandard(w http.ResponseWriter, r *http.Request, rest string) {
	if r.Method != http.MethodPut || !strings.HasPrefix(rest, "appointment/") {
		writeOutcome(w, http.StatusNotFound, "no route")
		return
	}
	id := strings.TrimPrefix(rest, "appointment/")

	body, _ := io.ReadAll(r.Body)
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		writeOutcome(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	payload["id"] = id
	f.cancels = append(f.cancels, payload)
	if raw, ok := f.appts[id]; ok {
		raw["status"], _ = json.Marshal(payload["status"])
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": payload["status"]})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOutcome(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, fhir.NewOperationOutcome("error", "processing", msg))
}

// stubTokens is a TokenSource that hands out a fixed token and records
// renewals.
type stubTokens struct {
	mu       sync.Mutex
	token    string
	renewTo  string
	renewErr error
	ensures  int
	renews   int
	stale    []string
}

func (s *stubTokens) EnsureValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensures++
	return s.token, nil
}

func (s *stubTokens) Renew(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renews++
	s.stale = append(s.stale, stale)
	if s.renewErr != nil {
		return "", s.renewErr
	}
	s.token = s.renewTo
	return s.token, nil
}

func (s *stubTokens) renewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renews
}

func newTestGateway(t *testing.T, ehr *fakeEHR, tokens TokenSource, now time.Time, mutate ...func(*Config)) *Gateway {
	t.Helper()
	cfg := Config{
		FHIRBaseURL:     ehr.URL + strings.TrimSuffix(fhirPrefix, "/"),
		StandardBaseURL: ehr.URL + strings.TrimSuffix(standardPrefix, "/"),
		Tokens:          tokens,
		RateLimiter:     resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 1000}),
		Retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		AttemptTimeout: 2 * time.Second,
		Now:            func() time.Time { return now },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	g, err := NewGateway(cfg)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func ptr[T any](v T) *T { return &v }

func mustStatus(t *testing.T, raw map[string]json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw["status"], &s); err != nil {
		t.Fatalf("status: %v", err)
	}
	return s
}
