package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"filealchemy/models"

	"github.com/rs/zerolog"
)

func TestMockConverter_ProducesOneResultPerInput(t *testing.T) {
	t.Parallel()

	files := []models.InputFile{
		{Name: "a.jpg", Size: 1000},
		{Name: "b.jpg", Size: 2000},
		{Name: "c.jpg", Size: 3000},
	}
	m := NewMockConverter(0, zerolog.Nop()).WithRand(rand.New(rand.NewPCG(1, 2)))

	var last int
	out, err := m.Convert(context.Background(), files, "jpeg", "png", func(p int, _ string) {
		if p < last {
			t.Errorf("progress went backwards: %d after %d", p, last)
		}
		last = p
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(out.Results))
	}

	anySuccess := false
	for i, r := range out.Results {
		if r.OriginalFile.Name != files[i].Name {
			t.Fatalf("result %d references %s, want %s", i, r.OriginalFile.Name, files[i].Name)
		}
		if r.Success {
			anySuccess = true
		}
	}
	if out.Success() != anySuccess {
		t.Fatalf("overall success = %v, any file succeeded = %v", out.Success(), anySuccess)
	}
	if out.Record.Path != models.ExecutionPathMock {
		t.Fatalf("path = %s, want mock", out.Record.Path)
	}
	if out.Status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
}

func TestMockConverter_JPEGToPNGScenario(t *testing.T) {
	t.Parallel()

	files := []models.InputFile{
		{Name: "a.jpg", Size: 10_000},
		{Name: "b.jpg", Size: 50_000},
	}
	m := NewMockConverter(0, zerolog.Nop()).WithRand(rand.New(rand.NewPCG(7, 11)))

	const trials = 2000
	successes, total := 0, 0
	for i := 0; i < trials; i++ {
		out, err := m.Convert(context.Background(), files, "JPEG", "PNG", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if len(out.Results) != 2 {
			t.Fatalf("got %d results", len(out.Results))
		}
		if out.Results[0].ConvertedFileName != "a.png" || out.Results[1].ConvertedFileName != "b.png" {
			t.Fatalf("names = %s, %s", out.Results[0].ConvertedFileName, out.Results[1].ConvertedFileName)
		}
		for j, r := range out.Results {
			total++
			if !r.Success {
				continue
			}
			successes++
			in := files[j].Size
			if r.Size*10 < in*7 || r.Size*10 > in*13 {
				t.Fatalf("size %d outside 70%%-130%% of %d", r.Size, in)
			}
		}
	}

	rate := float64(successes) / float64(total)
	if rate < 0.93 || rate > 0.97 {
		t.Fatalf("success rate = %.3f, want about %.2f", rate, MockSuccessRate)
	}
}

func TestMockConverter_SmallInputsStayWithinSizeBounds(t *testing.T) {
	t.Parallel()

	files := []models.InputFile{
		{Name: "a.jpg", Size: 1},
		{Name: "b.jpg", Size: 3},
		{Name: "c.jpg", Size: 7},
	}
	m := NewMockConverter(0, zerolog.Nop()).WithRand(rand.New(rand.NewPCG(3, 5)))

	for i := 0; i < 200; i++ {
		out, err := m.Convert(context.Background(), files, "JPEG", "PNG", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		for j, r := range out.Results {
			in := files[j].Size
			if r.Success && (r.Size*10 < in*7 || r.Size*10 > in*13) {
				t.Fatalf("input %d -> output %d, outside 70%%-130%%", in, r.Size)
			}
		}
	}
}

func TestMockOutputSize(t *testing.T) {
	tests := []struct {
		size   int64
		factor float64
		want   int64
	}{
		{1, 0.7, 1},
		{1, 1.29, 1},
		{3, 0.7, 3},
		{7, 0.7, 5},
		{7, 1.29, 9},
		{10, 0.7, 7},
		{10, 1.3, 13},
		{1000, 1.0, 1000},
		{0, 1.0, 0},
	}
	for _, tt := range tests {
		if got := mockOutputSize(tt.size, tt.factor); got != tt.want {
			t.Errorf("mockOutputSize(%d, %v) = %d, want %d", tt.size, tt.factor, got, tt.want)
		}
	}
}

func TestMockConverter_MultiOutputNaming(t *testing.T) {
	t.Parallel()

	m := NewMockConverter(0, zerolog.Nop())
	out, err := m.ConvertSingle(context.Background(), models.InputFile{Name: "deck.pdf", Size: 10}, "PDF", "PNG")
	if err != nil {
		t.Fatalf("ConvertSingle failed: %v", err)
	}
	if out.Results[0].ConvertedFileName != "deck_pages.zip" {
		t.Fatalf("name = %q", out.Results[0].ConvertedFileName)
	}
}

func TestMockConverter_HonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := NewMockConverter(time.Hour, zerolog.Nop())
	go cancel()

	out, err := m.Convert(ctx, []models.InputFile{{Name: "a.jpg", Size: 1}}, "JPEG", "PNG", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Success {
		t.Fatalf("unexpected results: %+v", out.Results)
	}
}
