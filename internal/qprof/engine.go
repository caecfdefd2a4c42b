package qprof

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"cnabd/internal/config"
	"cnabd/internal/store"
)

// The target system allows a single active login per account and keeps the
// operating-context selection in server-side session state, so sessions must
// never overlap within this process.
var sessionMu sync.Mutex

// Failure reasons surfaced to callers and persisted on the tracked file.
const (
	ReasonCredentialsUnavailable = "credentials unavailable"
	ReasonAuthRejected           = "authentication rejected"
	ReasonNavigationNotFound     = "navigation target not found"
	ReasonSubmissionFailed       = "file submission failed"
	ReasonResultNotConfirmed     = "result not confirmed"
)

// Result is the per-file outcome of one workflow session.
type Result struct {
	Success     bool   `json:"success"`
	ReferenceID string `json:"reference_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Engine runs the fixed import workflow against QPROF, one exclusive browser
// session per file.
type Engine struct {
	cfg     config.QProfConfig
	flow    config.WatchConfig
	store   *store.Store
	capture *Capture
	logger  *slog.Logger
}

func NewEngine(cfg config.QProfConfig, flow config.WatchConfig, st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		flow:    flow,
		store:   st,
		capture: NewCapture(st, flow.ScreenshotDir, logger),
		logger:  logger,
	}
}

// session carries the per-invocation browser state through the steps.
type session struct {
	ctx    context.Context
	fileID string
	step   int
}

// ProcessFile opens a browser session, walks the import workflow for one file
// and reports the outcome. company, when non-empty, is the operating context
// to switch to after login; empty falls back to the configured default.
// The browser is closed on every path.
func (e *Engine) ProcessFile(ctx context.Context, fileID, fileName, filePath, company string) (res Result) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if company == "" {
		company = e.cfg.Company
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow panicked",
				slog.String("file_id", fileID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			e.log(fileID, store.LogError, fmt.Sprintf("unexpected error: %v", r))
			res = Result{Error: fmt.Sprintf("unexpected error: %v", r)}
		}
	}()

	e.log(fileID, store.LogInfo, "starting import of "+fileName)

	if !e.cfg.HasCredentials() {
		e.log(fileID, store.LogError, "target system credentials not configured")
		return Result{Error: ReasonCredentialsUnavailable}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, 10*time.Minute)
	defer cancelTimeout()

	live := e.capture.StartLive(browserCtx, fileID, e.flow.LiveInterval)
	defer live.Stop()
	e.log(fileID, store.LogInfo, "live snapshot at "+live.Path())

	s := &session{ctx: browserCtx, fileID: fileID}

	if err := e.authenticate(s); err != nil {
		return e.fail(s, err.Error())
	}

	if company != "" {
		e.switchContext(s, company)
	}

	if err := e.navigate(s); err != nil {
		return e.fail(s, ReasonNavigationNotFound)
	}

	if err := e.submitFile(s, filePath); err != nil {
		return e.fail(s, err.Error())
	}

	e.awaitDatePrompt(s)

	ref, err := e.verifyResult(s, fileName)
	if err != nil {
		return e.fail(s, ReasonResultNotConfirmed)
	}

	e.log(fileID, store.LogSuccess, "file imported, assigned number "+ref)
	return Result{Success: true, ReferenceID: ref}
}

func (e *Engine) fail(s *session, reason string) Result {
	e.log(s.fileID, store.LogError, reason)
	e.snapshot(s, "failure")
	return Result{Error: reason}
}

// authenticate loads the login surface and submits credentials. A lingering
// "signed in elsewhere" confirmation is accepted once before giving up.
func (e *Engine) authenticate(s *session) error {
	e.log(s.fileID, store.LogInfo, "opening "+e.cfg.BaseURL)

	err := chromedp.Run(s.ctx,
		chromedp.Navigate(e.cfg.BaseURL),
		chromedp.WaitVisible(loginUserField, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%s: login surface unreachable: %w", ReasonAuthRejected, err)
	}
	e.snapshot(s, "login_page")

	err = chromedp.Run(s.ctx,
		chromedp.SendKeys(loginUserField, e.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(loginPasswordField, e.cfg.Password, chromedp.ByQuery),
		chromedp.Click(loginButton, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", ReasonAuthRejected, err)
	}

	if e.waitLeftLogin(s) {
		e.snapshot(s, "logged_in")
		e.log(s.fileID, store.LogInfo, "login accepted")
		return nil
	}

	// Still on the login surface; the account may be signed in elsewhere.
	var confirmed bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(clickActionJS(forceSignoutLabel), &confirmed)); err == nil && confirmed {
		e.log(s.fileID, store.LogInfo, "confirmed sign-out of concurrent session")
		if e.waitLeftLogin(s) {
			e.snapshot(s, "logged_in")
			e.log(s.fileID, store.LogInfo, "login accepted")
			return nil
		}
	}

	e.snapshot(s, "login_rejected")
	return fmt.Errorf("%s", ReasonAuthRejected)
}

// waitLeftLogin reports whether the session left the login surface within the
// step wait budget.
func (e *Engine) waitLeftLogin(s *session) bool {
	err := waitFor(s.ctx, e.flow.StepWaitTimeout, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		var loc string
		if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
			return false, err
		}
		return !strings.Contains(loc, loginPageMarker), nil
	})
	return err == nil
}

// switchContext selects the operating context when one is configured. Misses
// are non-fatal: the selection UI's "current" marker is unreliable, so an
// absent label is taken to mean the context is already correct.
func (e *Engine) switchContext(s *session, company string) {
	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))

	var opts []contextOption
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(collectContextOptionsJS(), &opts)); err != nil {
		e.log(s.fileID, store.LogWarning, "context selection unreadable, assuming current context")
		return
	}

	idx, ok := matchContext(opts, company)
	if !ok {
		e.log(s.fileID, store.LogWarning, "context "+company+" not offered, assuming already selected")
		return
	}

	var clicked bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(clickNthJS("a", idx), &clicked)); err != nil || !clicked {
		e.log(s.fileID, store.LogWarning, "context switch click failed, continuing")
		return
	}

	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
	e.log(s.fileID, store.LogInfo, "switched context to "+company)
	e.snapshot(s, "context_switched")
}

// navigate walks the fixed menu path to the bank-returns tab. Every miss is
// terminal and dumps the visible labels for diagnosis.
func (e *Engine) navigate(s *session) error {
	targets := []struct {
		label    string
		selector string
		snapshot string
	}{
		{menuCategoryLabel, "a, div, span", "menu_category"},
		{menuItemLabel, "a, div, span", "menu_item"},
		{returnsTabLabel, "a", "returns_tab"},
	}

	for _, t := range targets {
		chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))

		clicked := false
		err := waitFor(s.ctx, e.flow.StepWaitTimeout, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
			var labels []string
			if err := chromedp.Run(ctx, chromedp.Evaluate(collectLabelsJS(t.selector), &labels)); err != nil {
				return false, err
			}
			idx, ok := matchLabel(labels, t.label)
			if !ok {
				return false, nil
			}
			if err := chromedp.Run(ctx, chromedp.Evaluate(clickNthJS(t.selector, idx), &clicked)); err != nil {
				return false, err
			}
			return clicked, nil
		})
		if err != nil {
			var labels []string
			chromedp.Run(s.ctx, chromedp.Evaluate(collectLabelsJS(t.selector), &labels))
			e.log(s.fileID, store.LogError, t.label+" not found, visible labels: "+dumpLabels(labels))
			e.snapshot(s, t.snapshot+"_missing")
			return fmt.Errorf("%s: %s", ReasonNavigationNotFound, t.label)
		}

		e.log(s.fileID, store.LogInfo, "opened "+t.label)
		e.snapshot(s, t.snapshot)
	}

	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
	return nil
}

// submitFile clicks the choose-file trigger, attaches the file to the native
// input (which may live in a different frame than the trigger), dismisses the
// confirmation dialog if one appears and fires the import action. An absent
// import action is tolerated: some target states import automatically on
// attach.
func (e *Engine) submitFile(s *session, filePath string) error {
	var triggered bool
	err := waitFor(s.ctx, e.flow.StepWaitTimeout, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickActionJS(chooseFileLabel), &triggered)); err != nil {
			return false, err
		}
		return triggered, nil
	})
	if err != nil {
		e.log(s.fileID, store.LogError, "file selection trigger not found in any frame")
		e.snapshot(s, "trigger_missing")
		return fmt.Errorf("%s: trigger not found", ReasonSubmissionFailed)
	}
	e.log(s.fileID, store.LogInfo, "file selection dialog opened")

	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
	e.snapshot(s, "file_dialog")

	err = waitFor(s.ctx, e.flow.StepWaitTimeout, 500*time.Millisecond, func(ctx context.Context) (bool, error) {
		return attachFile(ctx, filePath)
	})
	if err != nil {
		e.log(s.fileID, store.LogError, "file input not found in any frame")
		e.snapshot(s, "input_missing")
		return fmt.Errorf("%s: file input not found", ReasonSubmissionFailed)
	}
	e.log(s.fileID, store.LogInfo, "file attached: "+filePath)
	e.snapshot(s, "file_attached")

	for _, label := range modalConfirmLabels {
		var confirmed bool
		if err := chromedp.Run(s.ctx, chromedp.Evaluate(clickActionJS(label), &confirmed)); err == nil && confirmed {
			e.log(s.fileID, store.LogInfo, "dismissed confirmation dialog via "+label)
			chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
			break
		}
	}

	var imported bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(clickActionJS(importLabel), &imported)); err != nil || !imported {
		e.log(s.fileID, store.LogWarning, "import action not offered, assuming automatic import on attach")
	} else {
		e.log(s.fileID, store.LogInfo, "import action triggered")
	}

	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
	e.snapshot(s, "after_import")
	return nil
}

// attachFile searches every document, frames included, for a native file input
// and sets its files. Reports (false, nil) while no input is present yet.
func attachFile(ctx context.Context, filePath string) (bool, error) {
	if _, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx); err != nil {
		return false, err
	}

	id, count, err := dom.PerformSearch(`input[type="file"]`).Do(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = dom.DiscardSearchResults(id).Do(ctx) }()

	if count == 0 {
		return false, nil
	}

	nodes, err := dom.GetSearchResults(id, 0, count).Do(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range nodes {
		if err := dom.SetFileInputFiles([]string{filePath}).WithNodeID(n).Do(ctx); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// awaitDatePrompt handles the optional follow-up asking for a processing
// date. The first date-shaped option is selected and confirmed; absence
// within the bounded wait is not an error.
func (e *Engine) awaitDatePrompt(s *session) {
	err := waitFor(s.ctx, 10*time.Second, time.Second, func(ctx context.Context) (bool, error) {
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(selectDatePromptJS, &found)); err != nil {
			return false, err
		}
		return found, nil
	})
	if err != nil {
		e.log(s.fileID, store.LogInfo, "no date prompt detected, continuing")
		return
	}

	e.log(s.fileID, store.LogInfo, "date prompt detected, first option selected")
	e.snapshot(s, "date_prompt")

	for _, label := range modalConfirmLabels {
		var confirmed bool
		if err := chromedp.Run(s.ctx, chromedp.Evaluate(clickActionJS(label), &confirmed)); err == nil && confirmed {
			e.log(s.fileID, store.LogInfo, "date prompt confirmed via "+label)
			break
		}
	}
	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
}

// verifyResult reloads the returns listing and scans it for the submitted
// file, extracting the number QPROF assigned to it.
func (e *Engine) verifyResult(s *session, fileName string) (string, error) {
	e.log(s.fileID, store.LogInfo, "reloading listing to verify import")

	if err := chromedp.Run(s.ctx, chromedp.Reload()); err != nil {
		return "", fmt.Errorf("reload failed: %w", err)
	}
	chromedp.Run(s.ctx, chromedp.Sleep(e.flow.StepSettleDelay))
	e.snapshot(s, "verification")

	var ref string
	err := waitFor(s.ctx, e.flow.StepWaitTimeout, time.Second, func(ctx context.Context) (bool, error) {
		if err := chromedp.Run(ctx, chromedp.Evaluate(findResultRowJS(fileName), &ref)); err != nil {
			return false, err
		}
		return ref != "", nil
	})
	if err != nil {
		e.snapshot(s, "result_missing")
		return "", fmt.Errorf("%s", ReasonResultNotConfirmed)
	}

	return ref, nil
}

func (e *Engine) snapshot(s *session, label string) {
	s.step++
	e.capture.Snapshot(s.ctx, s.fileID, s.step, label)
}

// log persists an audit entry for the file and mirrors it to the service log.
func (e *Engine) log(fileID string, level store.LogLevel, msg string) {
	if err := e.store.AppendLog(fileID, level, msg); err != nil {
		e.logger.Warn("failed to persist audit log entry",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}

	attrs := []any{slog.String("file_id", fileID)}
	switch level {
	case store.LogError:
		e.logger.Error(msg, attrs...)
	case store.LogWarning:
		e.logger.Warn(msg, attrs...)
	default:
		e.logger.Info(msg, attrs...)
	}
}

