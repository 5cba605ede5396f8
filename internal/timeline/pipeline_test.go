package timeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"profiled/internal/sheet"
)

type fakeFetcher struct {
	body []byte
	err  error
	got  string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (sheet.Payload, error) {
	f.got = u
	if f.err != nil {
		return sheet.Payload{}, f.err
	}
	return sheet.Payload{URL: u, Body: f.body}, nil
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		ref, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", ref, &r); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func Test_Pipeline_Run(t *testing.T) {
	body := workbook(t, [][]any{
		{"Date", "Artist", "Event", "Location", "Seat", "Image"},
		{"2023.05.01", "Old", "Tour", "Dome", "C3", "old.jpg"},
		{"", "No date"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "New", "Concert", "Hall A", "B12", "pic.png"},
		{"soon", "Unknown"},
	})
	ff := &fakeFetcher{body: body}
	p := &Pipeline{
		SheetURL: "https://docs.google.com/spreadsheets/d/abc/edit#gid=0",
		Fetcher:  ff,
		Location: time.UTC,
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ff.got != "https://docs.google.com/spreadsheets/d/abc/export?format=xlsx" {
		t.Errorf("fetched %q, want export URL", ff.got)
	}
	if res.Rows != 4 {
		t.Errorf("Rows = %d, want 4", res.Rows)
	}
	got := dates(res.Events)
	want := []string{"2024.03.01", "2023.05.01", "soon"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events = %v, want %v", got, want)
			break
		}
	}
	if res.Events[0].ImageURL != "images/pic.png" {
		t.Errorf("ImageURL = %q", res.Events[0].ImageURL)
	}
}

func Test_Pipeline_Run_Errors(t *testing.T) {
	statusErr := &sheet.StatusError{StatusCode: 404, Status: "404 Not Found"}
	tests := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{"fetch failure", &fakeFetcher{err: statusErr}},
		{"malformed workbook", &fakeFetcher{body: []byte("<html></html>")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Pipeline{SheetURL: "https://example.com/x/pubhtml", Fetcher: tt.fetcher}
			if _, err := p.Run(context.Background()); err == nil {
				t.Errorf("Run() expected error")
			}
		})
	}
}

type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (r *blockingRunner) Run(context.Context) (Result, error) {
	r.calls.Add(1)
	<-r.release
	return Result{}, r.err
}

func Test_Store_SingleRunInFlight(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{})}
	s := NewStore(r)

	if st := s.Snapshot().State; st != StateLoading {
		t.Fatalf("initial state = %v, want loading", st)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Refresh(context.Background())
		}()
	}
	// Give the goroutines a chance to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()

	if n := r.calls.Load(); n != 1 {
		t.Fatalf("runner called %d times, want 1", n)
	}
	if st := s.Snapshot().State; st != StateReady {
		t.Errorf("state = %v, want ready", st)
	}
}

func Test_Store_FailureReplacesEvents(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), err: errors.New("network response was not ok: 500")}
	close(r.release)

	var notified atomic.Int32
	s := NewStore(r)
	s.OnUpdate(func(Snapshot) { notified.Add(1) })

	snap := s.Refresh(context.Background())
	if snap.State != StateFailed {
		t.Errorf("state = %v, want failed", snap.State)
	}
	if snap.Error != "network response was not ok: 500" {
		t.Errorf("Error = %q", snap.Error)
	}
	if len(snap.Events) != 0 {
		t.Errorf("failed snapshot carries %d events", len(snap.Events))
	}
	if notified.Load() != 1 {
		t.Errorf("listeners notified %d times, want 1", notified.Load())
	}
}

func Test_Store_SnapshotSource(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		state   State
	}{
		{"ready", &fakeFetcher{body: workbook(t, [][]any{{"Date"}, {"2024.01.01"}})}, StateReady},
		{"failed", &fakeFetcher{err: errors.New("boom")}, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(&Pipeline{
				SheetURL: "https://docs.google.com/spreadsheets/d/e/secret/pubhtml",
				Fetcher:  tt.fetcher,
				Location: time.UTC,
			})
			snap := s.Refresh(context.Background())
			if snap.State != tt.state {
				t.Fatalf("state = %v, want %v", snap.State, tt.state)
			}
			if snap.Source != "https://docs.google.com/...(redacted)" {
				t.Errorf("Source = %q, want redacted export URL", snap.Source)
			}
		})
	}
}
