package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/analysis"
	"github.com/JakeFAU/tender-analyzer/internal/metrics"
	"github.com/JakeFAU/tender-analyzer/internal/staging"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// Progress messages shown to pollers.
const (
	msgInit      = "Инициализация..."
	msgToken     = "Получение токена доступа..."
	msgCollect   = "Собираю полную информацию по закупке..."
	msgReset     = "Очищаю папку с техспецификациями..."
	msgDownload  = "Загружаю техспецификации..."
	msgUpload    = "Загружаю файлы в сервис анализа..."
	msgUploadOne = "Выгружаю файл (%d/%d): %s"
	msgAnalyze   = "Анализирую техспецификацию..."
	msgAnalyzed  = "Анализ завершён (%s)"
	msgSave      = "Сохраняю результат..."
	msgDone      = "Отчёт успешно сформирован!"
	msgFailed    = "Ошибка: %s"
)

// ErrInvalidAdvertID rejects non-positive announcement ids.
var ErrInvalidAdvertID = errors.New("advert_id must be a positive integer")

// Portal acquires credentials and the announcement record.
type Portal interface {
	Authenticate(ctx context.Context) (tender.Credentials, error)
	Collect(ctx context.Context, creds tender.Credentials, id int64) (*tender.Record, error)
}

// Retriever stages attachment files.
type Retriever interface {
	Retrieve(ctx context.Context, creds tender.Credentials, dir string, files []tender.TechSpecFile) (staging.Outcome, error)
}

// Analyzer uploads staged files and runs the analysis branches.
type Analyzer interface {
	UploadAll(ctx context.Context, paths []string, onUpload func(i, n int, name string)) ([]analysis.FileHandle, error)
	Analyze(ctx context.Context, files []analysis.FileHandle, onDone func(done, total int, result analysis.Result)) []analysis.Result
}

// Config controls where runs stage files and where completions are announced.
type Config struct {
	StagingDir string
	// KeepFiles leaves each run's staging directory in place for inspection.
	KeepFiles bool
	// Topic receives a report.completed message per finished run; empty disables it.
	Topic string
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Store     *Store
	Portal    Portal
	Retriever Retriever
	Analyzer  Analyzer
	Reports   tender.ReportStore
	Publisher tender.Publisher
	Clock     tender.Clock
	IDs       tender.IDGenerator
}

// Manager accepts announcement ids and runs one pipeline per accepted id on
// its own goroutine.
type Manager struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewManager constructs a Manager. A nil Store gets a fresh one.
func NewManager(deps Deps, cfg Config, logger *zap.Logger) *Manager {
	if deps.Store == nil {
		deps.Store = NewStore()
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join("downloads", "goszakup_techspecs")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{deps: deps, cfg: cfg, logger: logger}
}

// ReportName is the deterministic report file name for an announcement.
func ReportName(id int64) string {
	return fmt.Sprintf("goszakup_%d.json", id)
}

// Submit starts a run for id unless one is already running. It returns the
// task id and whether a new run was started.
func (m *Manager) Submit(id int64) (string, bool, error) {
	state, started, err := m.start(id)
	if err != nil || !started {
		return state.ID, false, err
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Runs are not tied to the accepting request and have no deadline.
		m.execute(context.Background(), id, state)
	}()
	return state.ID, true, nil
}

// Run executes one pipeline synchronously and returns its terminal state.
func (m *Manager) Run(ctx context.Context, id int64) (tender.TaskState, error) {
	state, started, err := m.start(id)
	if err != nil {
		return tender.TaskState{}, err
	}
	if !started {
		return state, fmt.Errorf("task %s is already running", state.ID)
	}
	return m.execute(ctx, id, state), nil
}

// Status returns the current state of a task.
func (m *Manager) Status(taskID string) (tender.TaskState, error) {
	return m.deps.Store.Get(taskID)
}

// Wait blocks until every submitted run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) start(id int64) (tender.TaskState, bool, error) {
	if id <= 0 {
		return tender.TaskState{}, false, ErrInvalidAdvertID
	}
	runID, err := m.deps.IDs.NewID()
	if err != nil {
		return tender.TaskState{}, false, fmt.Errorf("run id: %w", err)
	}
	state, started := m.deps.Store.TryStart(tender.TaskState{
		ID:      strconv.FormatInt(id, 10),
		RunID:   runID,
		Status:  tender.TaskRunning,
		Message: msgInit,
		Started: m.deps.Clock.Now(),
	})
	if !started {
		m.logger.Info("task already running", zap.String("task_id", state.ID))
	}
	return state, started, nil
}

func (m *Manager) execute(ctx context.Context, id int64, state tender.TaskState) tender.TaskState {
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	logger := m.logger.With(zap.String("task_id", state.ID), zap.String("run_id", state.RunID))
	logger.Info("task started")

	out, err := m.pipeline(ctx, id, state, logger)
	if err != nil {
		logger.Error("task failed", zap.Error(err))
		metrics.ObserveTask(string(tender.TaskError))
		return m.finish(state.ID, func(s *tender.TaskState) {
			text := err.Error()
			s.Status = tender.TaskError
			s.Error = &text
			s.Message = fmt.Sprintf(msgFailed, text)
		})
	}

	metrics.ObserveTask(string(tender.TaskCompleted))
	final := m.finish(state.ID, func(s *tender.TaskState) {
		s.Status = tender.TaskCompleted
		s.Progress = 100
		s.Message = msgDone
		s.Result = &out.name
	})
	logger.Info("task completed", zap.String("report", out.name))
	m.publish(ctx, id, final, out.files, logger)
	return final
}

// stagedFile identifies one analyzed attachment in the completion event.
type stagedFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256,omitempty"`
}

type completion struct {
	name  string
	files []stagedFile
}

// pipeline runs every stage in order and returns the persisted report name
// together with the staged files it was built from.
func (m *Manager) pipeline(ctx context.Context, id int64, state tender.TaskState, logger *zap.Logger) (completion, error) {
	m.checkpoint(state.ID, 5, msgToken)
	creds, err := m.deps.Portal.Authenticate(ctx)
	if err != nil {
		return completion{}, fmt.Errorf("access token: %w", err)
	}

	m.checkpoint(state.ID, 15, msgCollect)
	record, err := m.deps.Portal.Collect(ctx, creds, id)
	if err != nil {
		return completion{}, fmt.Errorf("collect announcement: %w", err)
	}

	// The retriever resets dir before downloading.
	m.checkpoint(state.ID, 30, msgReset)
	dir := filepath.Join(m.cfg.StagingDir, state.RunID)
	if !m.cfg.KeepFiles {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("remove staging dir", zap.String("dir", dir), zap.Error(err))
			}
		}()
	}

	m.checkpoint(state.ID, 40, msgDownload)
	outcome, err := m.deps.Retriever.Retrieve(ctx, creds, dir, record.TechSpecFiles())
	if err != nil {
		return completion{}, err
	}
	if outcome.Violation != nil {
		return completion{}, outcome.Violation
	}
	metrics.ObserveStagedFiles(len(outcome.Paths))
	files := make([]stagedFile, len(outcome.Paths))
	for i, path := range outcome.Paths {
		files[i].Name = filepath.Base(path)
		if i < len(outcome.Digests) {
			files[i].SHA256 = outcome.Digests[i]
		}
	}

	m.checkpoint(state.ID, 50, msgUpload)
	handles, err := m.deps.Analyzer.UploadAll(ctx, outcome.Paths, func(i, n int, name string) {
		m.checkpoint(state.ID, 50+(i+1)*20/n, fmt.Sprintf(msgUploadOne, i+1, n, name))
	})
	if err != nil {
		return completion{}, err
	}

	m.checkpoint(state.ID, 70, msgAnalyze)
	results := m.deps.Analyzer.Analyze(ctx, handles, func(done, total int, result analysis.Result) {
		m.checkpoint(state.ID, 70+done*25/total, fmt.Sprintf(msgAnalyzed, result.Label))
	})
	for _, result := range results {
		record.SetAnalysis(result.Label, result.Value())
	}

	m.checkpoint(state.ID, 95, msgSave)
	data, err := EncodeReport(record)
	if err != nil {
		return completion{}, err
	}
	name := ReportName(id)
	uri, err := m.deps.Reports.Put(ctx, name, data)
	if err != nil {
		return completion{}, fmt.Errorf("save report: %w", err)
	}
	logger.Debug("report saved", zap.String("uri", uri))
	return completion{name: name, files: files}, nil
}

func (m *Manager) checkpoint(taskID string, progress int, message string) {
	if _, err := m.deps.Store.Update(taskID, func(s *tender.TaskState) {
		s.Progress = progress
		s.Message = message
	}); err != nil {
		m.logger.Error("checkpoint update failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

func (m *Manager) finish(taskID string, fn func(*tender.TaskState)) tender.TaskState {
	now := m.deps.Clock.Now()
	state, err := m.deps.Store.Update(taskID, func(s *tender.TaskState) {
		fn(s)
		s.Finished = &now
	})
	if err != nil {
		m.logger.Error("final task update failed", zap.String("task_id", taskID), zap.Error(err))
	}
	return state
}

func (m *Manager) publish(ctx context.Context, id int64, state tender.TaskState, files []stagedFile, logger *zap.Logger) {
	if m.cfg.Topic == "" || m.deps.Publisher == nil || state.Result == nil {
		return
	}
	payload := map[string]any{
		"event":     "report.completed",
		"task_id":   state.ID,
		"run_id":    state.RunID,
		"advert_id": id,
		"report":    *state.Result,
		"files":     files,
		"timestamp": m.deps.Clock.Now().Format(time.RFC3339),
	}
	msgID, err := m.deps.Publisher.Publish(ctx, m.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish report event", zap.Error(err))
		return
	}
	logger.Info("report event published", zap.String("message_id", msgID))
}

// EncodeReport renders a record as the persisted report: indented with four
// spaces, keys in record order, non-ASCII and HTML characters kept literal.
func EncodeReport(record *tender.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
