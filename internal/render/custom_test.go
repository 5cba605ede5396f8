package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"profiled/internal/links"
	"profiled/internal/model"
	"profiled/internal/timeline"
)

const customPage = `<!DOCTYPE html><html><head><title>me</title></head><body>
<img class="bento-avatar round" src="https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz/view?usp=sharing">
<img class="other" src="https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz/view">
<div id="timeline-container"><p>static placeholder</p></div>
</body></html>`

func Test_CustomPage(t *testing.T) {
	tl := NewTimelineData(timeline.Snapshot{
		State:  timeline.StateReady,
		Events: []model.Event{{Date: "2024.01.01", Artist: "A"}, {Date: "2023.01.01", Artist: "B"}},
	}, time.Now(), viewOpts)

	var buf bytes.Buffer
	if err := CustomPage(&buf, []byte(customPage), tl); err != nil {
		t.Fatalf("CustomPage() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `src="`+links.DirectContentBase+`1AbCdEfGhIjKlMnOpQrStUvWxYz"`) {
		t.Errorf("avatar not rewritten:\n%s", out)
	}
	if strings.Count(out, links.DirectContentBase) != 1 {
		t.Errorf("only the avatar should be rewritten:\n%s", out)
	}
	if strings.Contains(out, "static placeholder") {
		t.Errorf("container contents not replaced")
	}
	if n := strings.Count(out, `class="timeline-item"`); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
	if !strings.Contains(out, `data-state="ready"`) {
		t.Errorf("container state not set")
	}
	if !strings.Contains(out, `data-ready="true"`) {
		t.Errorf("finished timeline should mark the container ready:\n%s", out)
	}
}

func Test_CustomPage_ReadyMarker(t *testing.T) {
	tests := []struct {
		state timeline.State
		ready bool
	}{
		{timeline.StateLoading, false},
		{timeline.StateReady, true},
		{timeline.StateFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			var buf bytes.Buffer
			if err := CustomPage(&buf, []byte(customPage), TimelineData{State: tt.state, Error: "x"}); err != nil {
				t.Fatalf("CustomPage() error = %v", err)
			}
			if got := strings.Contains(buf.String(), `data-ready="true"`); got != tt.ready {
				t.Errorf("data-ready present = %v, want %v", got, tt.ready)
			}
		})
	}
}

func Test_CustomPage_NoContainer(t *testing.T) {
	err := CustomPage(&bytes.Buffer{}, []byte("<html><body></body></html>"), TimelineData{State: timeline.StateLoading})
	if !errors.Is(err, ErrNoContainer) {
		t.Errorf("err = %v, want ErrNoContainer", err)
	}
}
