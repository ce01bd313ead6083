package swebench

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"swevalidator/internal/logging"
)

// ReportEventKind distinguishes watcher events.
type ReportEventKind string

const (
	// InstanceStarted fires when the harness creates an instance log directory.
	InstanceStarted ReportEventKind = "instance_started"
	// ReportWritten fires when an instance's report.json appears.
	ReportWritten ReportEventKind = "report_written"
)

// ReportEvent is emitted as the harness makes progress on a run.
type ReportEvent struct {
	Kind       ReportEventKind
	InstanceID string
	Path       string
}

// ReportWatcher follows a run directory while the harness is running.
// It is purely observational: classification always re-reads reports
// after the harness returns.
type ReportWatcher struct {
	watcher *fsnotify.Watcher
	runDir  string
	onEvent func(ReportEvent)

	mu       sync.Mutex
	started  map[string]bool
	reported map[string]bool

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchRun creates the run directory if needed and starts watching it.
// onEvent is called from the watcher goroutine.
func WatchRun(logRoot, runID string, onEvent func(ReportEvent)) (*ReportWatcher, error) {
	runDir := RunDir(logRoot, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(runDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", runDir, err)
	}

	w := &ReportWatcher{
		watcher:  fw,
		runDir:   runDir,
		onEvent:  onEvent,
		started:  make(map[string]bool),
		reported: make(map[string]bool),
		done:     make(chan struct{}),
	}

	// Pick up anything created before the watch was registered.
	entries, _ := os.ReadDir(runDir)
	for _, entry := range entries {
		if entry.IsDir() {
			w.trackInstance(filepath.Join(runDir, entry.Name()))
		}
	}

	w.wg.Add(1)
	go w.loop()

	logging.HarnessDebug("Watching run directory %s", runDir)
	return w, nil
}

// RunDir returns the watched directory.
func (w *ReportWatcher) RunDir() string {
	return w.runDir
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *ReportWatcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *ReportWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.HarnessWarn("Run watcher error: %v", err)
		}
	}
}

func (w *ReportWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	parent := filepath.Dir(event.Name)
	if parent == w.runDir {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.trackInstance(event.Name)
		}
		return
	}

	if filepath.Base(event.Name) == ReportFileName && filepath.Dir(parent) == w.runDir {
		w.emitReport(filepath.Base(parent), event.Name)
	}
}

// trackInstance watches an instance directory and emits InstanceStarted once.
func (w *ReportWatcher) trackInstance(dir string) {
	instanceID := filepath.Base(dir)

	w.mu.Lock()
	seen := w.started[instanceID]
	w.started[instanceID] = true
	w.mu.Unlock()
	if seen {
		return
	}

	if err := w.watcher.Add(dir); err != nil {
		logging.HarnessWarn("Failed to watch instance directory %s: %v", dir, err)
	}
	w.emit(ReportEvent{Kind: InstanceStarted, InstanceID: instanceID, Path: dir})

	// The report may already exist if the instance finished quickly.
	report := filepath.Join(dir, ReportFileName)
	if _, err := os.Stat(report); err == nil {
		w.emitReport(instanceID, report)
	}
}

func (w *ReportWatcher) emitReport(instanceID, path string) {
	w.mu.Lock()
	seen := w.reported[instanceID]
	w.reported[instanceID] = true
	w.mu.Unlock()
	if seen {
		return
	}
	w.emit(ReportEvent{Kind: ReportWritten, InstanceID: instanceID, Path: path})
}

func (w *ReportWatcher) emit(event ReportEvent) {
	logging.HarnessDebug("Run progress: %s %s", event.Kind, event.InstanceID)
	if w.onEvent != nil {
		w.onEvent(event)
	}
}
