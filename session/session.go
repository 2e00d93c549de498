// Package session holds the state of one conversion session: the chosen
// format pair, the selected files with their preview handles, and the
// progress and results of the running conversion.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"filealchemy/models"
)

var ErrIndexOutOfRange = errors.New("file index out of range")

// Generation identifies one conversion attempt. Callbacks carrying an older
// generation are ignored.
type Generation uint64

type Snapshot struct {
	Category     models.Category
	SourceFormat models.Format
	TargetFormat models.Format
	Files        []models.InputFile
	Previews     []string
	Converting   bool
	Progress     int
	Results      []models.Result
	Summary      string
	Generation   Generation
}

// State is mutated only through its named transitions. files and previews
// are always index-aligned.
type State struct {
	mu       sync.Mutex
	previews PreviewStore

	category models.Category
	source   models.Format
	target   models.Format

	files        []models.InputFile
	previewIDs   []string
	converting   bool
	progress     int
	results      []models.Result
	summary      string
	generation   Generation
	cancelActive context.CancelFunc
}

func New(previews PreviewStore) *State {
	if previews == nil {
		previews = NewHandleStore()
	}
	return &State{previews: previews}
}

func (s *State) SetConversionTarget(category models.Category, source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = category
	s.source = models.NormalizeFormat(source)
	s.target = models.NormalizeFormat(target)
}

// AddFiles appends files and creates one preview per file. If a preview
// cannot be created, the previews of this batch are released and nothing
// is added.
func (s *State) AddFiles(files ...models.InputFile) error {
	handles := make([]string, 0, len(files))
	for _, f := range files {
		h, err := s.previews.Create(f)
		if err != nil {
			for _, created := range handles {
				s.previews.Release(created)
			}
			return fmt.Errorf("failed to create preview for %s: %w", f.Name, err)
		}
		handles = append(handles, h)
	}

	s.mu.Lock()
	s.files = append(s.files, files...)
	s.previewIDs = append(s.previewIDs, handles...)
	s.mu.Unlock()
	return nil
}

func (s *State) RemoveFileAt(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.files) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	handle := s.previewIDs[index]
	s.files = append(s.files[:index:index], s.files[index+1:]...)
	s.previewIDs = append(s.previewIDs[:index:index], s.previewIDs[index+1:]...)
	s.mu.Unlock()

	s.previews.Release(handle)
	return nil
}

func (s *State) ClearFiles() {
	s.mu.Lock()
	handles := s.dropFilesLocked()
	s.mu.Unlock()
	s.release(handles)
}

// StartConversion begins a new attempt: progress goes to 0, previous results
// are cleared and any previous attempt's context is cancelled. The returned
// context is cancelled when the attempt is superseded or the session reset.
func (s *State) StartConversion(parent context.Context) (context.Context, Generation) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelActive != nil {
		s.cancelActive()
	}
	s.generation++
	s.cancelActive = cancel
	s.converting = true
	s.progress = 0
	s.results = nil
	s.summary = ""
	return ctx, s.generation
}

// UpdateProgress applies percent if gen is the running attempt.
func (s *State) UpdateProgress(gen Generation, percent int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.converting {
		return false
	}
	s.progress = min(max(percent, 0), 100)
	return true
}

// CompleteConversion stores the outcome of attempt gen. Progress becomes 100
// however many files failed.
func (s *State) CompleteConversion(gen Generation, outcome models.ConversionOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.converting {
		return false
	}
	s.converting = false
	s.progress = 100
	s.results = outcome.Results
	s.summary = outcome.Summary()
	if s.cancelActive != nil {
		s.cancelActive()
		s.cancelActive = nil
	}
	return true
}

// ResetAll discards everything, including the category.
func (s *State) ResetAll() {
	s.mu.Lock()
	handles := s.resetLocked()
	s.category = ""
	s.mu.Unlock()
	s.release(handles)
}

// ResetKeepingCategory discards formats, files and results but keeps the
// selected category.
func (s *State) ResetKeepingCategory() {
	s.mu.Lock()
	handles := s.resetLocked()
	s.mu.Unlock()
	s.release(handles)
}

func (s *State) Files() []models.InputFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InputFile, len(s.files))
	copy(out, s.files)
	return out
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Category:     s.category,
		SourceFormat: s.source,
		TargetFormat: s.target,
		Files:        make([]models.InputFile, len(s.files)),
		Previews:     make([]string, len(s.previewIDs)),
		Converting:   s.converting,
		Progress:     s.progress,
		Results:      make([]models.Result, len(s.results)),
		Summary:      s.summary,
		Generation:   s.generation,
	}
	copy(snap.Files, s.files)
	copy(snap.Previews, s.previewIDs)
	copy(snap.Results, s.results)
	return snap
}

func (s *State) resetLocked() []string {
	if s.cancelActive != nil {
		s.cancelActive()
		s.cancelActive = nil
	}
	s.generation++
	s.source = ""
	s.target = ""
	s.converting = false
	s.progress = 0
	s.results = nil
	s.summary = ""
	return s.dropFilesLocked()
}

func (s *State) dropFilesLocked() []string {
	handles := s.previewIDs
	s.files = nil
	s.previewIDs = nil
	return handles
}

func (s *State) release(handles []string) {
	for _, h := range handles {
		s.previews.Release(h)
	}
}
