// Package backend implements the external analyzer collaborators. The CLI
// backend shells out to a Gemini-style command-line analyzer: the prompt goes
// to stdin, the PDFs are copied into a scratch working directory, and stdout
// is the analysis text.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/guidelines"
	"github.com/nakatsu/shirabe/internal/history"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/pdfmeta"
)

// noiseLines are CLI chatter filtered out of analyzer stdout.
var noiseLines = []string{
	"Loaded cached credentials",
	"Hook registry initialized",
}

// Config holds CLI analyzer settings.
type Config struct {
	// Binary is the analyzer executable, resolved via PATH when relative.
	Binary string
	// Model is passed to the analyzer's -m flag.
	Model string
	// Timeout bounds one analyzer invocation; zero means no limit.
	Timeout time.Duration
	// MaxParallel bounds concurrent per-file invocations in individual mode.
	MaxParallel int
}

// CLI is the command-line analyzer backend. Individual multi-file runs fan
// out per file and publish one progress event per completed file; the joined
// response uses the per-file section wire format.
type CLI struct {
	cfg     Config
	bus     *bus.Bus
	history *history.Store
	meta    *pdfmeta.Codec
	logger  *zap.Logger

	// run executes one analyzer invocation; replaced in tests.
	run func(ctx context.Context, dir, prompt string, files []string) (string, error)
}

// Option configures a CLI backend.
type Option func(*CLI)

// WithLogger sets a logger for invocation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *CLI) { c.logger = l }
}

// NewCLI creates a CLI backend. hist and meta may be nil, in which case
// results are not persisted to history nor embedded into the PDFs.
func NewCLI(cfg Config, b *bus.Bus, hist *history.Store, meta *pdfmeta.Codec, opts ...Option) *CLI {
	if cfg.Binary == "" {
		cfg.Binary = "gemini"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	c := &CLI{cfg: cfg, bus: b, history: hist, meta: meta}
	c.run = c.execRun
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze issues one analysis run and returns the single response blob.
func (c *CLI) Analyze(ctx context.Context, req *models.AnalyzeRequest) (string, error) {
	if len(req.Paths) == 0 {
		return "", fmt.Errorf("no files specified")
	}
	if req.Mode == models.ModeCompare {
		return c.analyzeCompare(ctx, req)
	}
	return c.analyzeIndividual(ctx, req)
}

func (c *CLI) analyzeIndividual(ctx context.Context, req *models.AnalyzeRequest) (string, error) {
	c.log(fmt.Sprintf("=== individual analysis started (%d files) ===", len(req.Paths)), models.LevelInfo)
	if req.CustomInstruction != "" {
		c.log("custom instruction: "+firstLine(req.CustomInstruction), models.LevelInfo)
	}
	c.log(fmt.Sprintf("analyzing %d file(s) with %s...", len(req.Paths), c.cfg.Model), models.LevelWave)

	type outcome struct {
		name   string
		result string
		err    error
	}
	outcomes := make([]outcome, len(req.Paths))
	sem := make(chan struct{}, c.cfg.MaxParallel)
	var wg sync.WaitGroup
	for i, path := range req.Paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			name := filepath.Base(path)
			result, err := c.analyzeSingle(ctx, path, req.CustomInstruction)
			outcomes[i] = outcome{name: name, result: result, err: err}
			c.bus.Publish(models.ChannelProgress, models.ProgressEvent{
				FileName:  name,
				Completed: true,
				Success:   err == nil,
			})
		}(i, path)
	}
	wg.Wait()

	var out strings.Builder
	succeeded := 0
	for _, o := range outcomes {
		fmt.Fprintf(&out, "\n## 📄 %s\n---\n", o.name)
		if o.err != nil {
			fmt.Fprintf(&out, "⚠ error: %v", o.err)
		} else {
			out.WriteString(o.result)
			succeeded++
		}
		out.WriteString("\n\n")
	}
	c.log(fmt.Sprintf("✓ analysis finished (%d/%d)", succeeded, len(req.Paths)), models.LevelSuccess)
	return out.String(), nil
}

// analyzeSingle runs the analyzer on one PDF in a scratch directory and, on
// success, persists a history entry and embeds the result into the file.
func (c *CLI) analyzeSingle(ctx context.Context, path, instruction string) (string, error) {
	name := filepath.Base(path)
	folder := filepath.Dir(path)

	dir, err := os.MkdirTemp("", "shirabe-analysis-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	if err := copyFile(path, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}

	prompt := promptIndividual(name, c.guidelineSection(folder, name), customSection(instruction), c.historyContext(ctx, folder))
	result, err := c.run(ctx, dir, prompt, []string{name})
	if err != nil {
		return "", err
	}

	if c.history != nil {
		if err := c.history.Save(ctx, history.NewEntry(name, path, result)); err != nil && c.logger != nil {
			c.logger.Warn("history save failed", zap.String("file", name), zap.Error(err))
		}
	}
	if c.meta != nil {
		if err := c.meta.Embed(path, result, instruction); err != nil && c.logger != nil {
			c.logger.Warn("result embed failed", zap.String("file", name), zap.Error(err))
		}
	}
	return result, nil
}

func (c *CLI) analyzeCompare(ctx context.Context, req *models.AnalyzeRequest) (string, error) {
	names := make([]string, len(req.Paths))
	for i, p := range req.Paths {
		names[i] = filepath.Base(p)
	}
	c.log(fmt.Sprintf("=== compare analysis started (%d files) ===", len(req.Paths)), models.LevelInfo)
	for _, name := range names {
		c.log("  - "+name, models.LevelInfo)
	}
	if req.CustomInstruction != "" {
		c.log("custom instruction: "+firstLine(req.CustomInstruction), models.LevelInfo)
	}
	c.log(fmt.Sprintf("comparing with %s...", c.cfg.Model), models.LevelWave)

	dir, err := os.MkdirTemp("", "shirabe-compare-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	for i, path := range req.Paths {
		if err := copyFile(path, filepath.Join(dir, names[i])); err != nil {
			return "", fmt.Errorf("stage %s: %w", names[i], err)
		}
	}

	folder := filepath.Dir(req.Paths[0])
	prompt := promptCompare(names, c.guidelineSection(folder, names...), customSection(req.CustomInstruction), c.historyContext(ctx, folder))
	result, err := c.run(ctx, dir, prompt, names)
	if err != nil {
		c.log("compare error: "+err.Error(), models.LevelError)
		return "", err
	}

	if c.history != nil {
		summary := "[compare] files: " + strings.Join(names, ", ")
		for i, path := range req.Paths {
			entry := &models.HistoryEntry{
				FileName:     names[i],
				FilePath:     path,
				Folder:       filepath.Dir(path),
				AnalyzedAt:   time.Now().Format("2006-01-02 15:04:05"),
				DocumentType: models.DocTypeComparative,
				Summary:      summary,
				Issues:       history.Issues(result),
			}
			if err := c.history.Save(ctx, entry); err != nil && c.logger != nil {
				c.logger.Warn("history save failed", zap.String("file", names[i]), zap.Error(err))
			}
		}
	}
	if c.meta != nil {
		for _, path := range req.Paths {
			if err := c.meta.Embed(path, result, req.CustomInstruction); err != nil && c.logger != nil {
				c.logger.Warn("result embed failed", zap.String("file", filepath.Base(path)), zap.Error(err))
			}
		}
	}
	c.log("✓ compare finished", models.LevelSuccess)
	return result, nil
}

// Guidelines regenerates the folder's guideline document from the embedded
// results of the given files and returns a readable summary of it.
func (c *CLI) Guidelines(ctx context.Context, req *models.GuidelineRequest) (string, error) {
	type collected struct {
		name string
		data *pdfmeta.EmbeddedData
	}
	var inputs []collected
	if c.meta != nil {
		for _, path := range req.Paths {
			data, err := c.meta.Read(path)
			if err != nil || data == nil {
				continue
			}
			inputs = append(inputs, collected{name: filepath.Base(path), data: data})
		}
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("selected files carry no analysis data")
	}

	c.log(fmt.Sprintf("=== guideline generation (%d files) ===", len(inputs)), models.LevelInfo)

	var issues, instructions []string
	if req.CustomInstruction != "" {
		instructions = append(instructions, req.CustomInstruction)
	}
	var names []string
	for _, in := range inputs {
		names = append(names, in.name)
		for _, issue := range history.Issues(in.data.Result) {
			tagged := fmt.Sprintf("[%s] %s", in.name, issue)
			if !contains(issues, tagged) {
				issues = append(issues, tagged)
			}
		}
		if in.data.Instruction != "" && !contains(instructions, in.data.Instruction) {
			instructions = append(instructions, in.data.Instruction)
		}
	}
	var types []string
	for _, name := range names {
		for _, t := range guidelines.DetectDocumentTypes(name) {
			if !contains(types, t) {
				types = append(types, t)
			}
		}
	}

	existing, err := guidelines.Load(req.Folder)
	if err != nil && c.logger != nil {
		c.logger.Warn("existing guidelines unreadable", zap.String("folder", req.Folder), zap.Error(err))
	}
	prompt := promptGuidelines(existing, issues, instructions, types)

	c.log("summarizing with "+c.cfg.Model+"...", models.LevelWave)
	dir, err := os.MkdirTemp("", "shirabe-guidelines-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out, err := c.run(ctx, dir, prompt, nil)
	if err != nil {
		c.log("guideline error: "+err.Error(), models.LevelError)
		return "", err
	}

	var g guidelines.Guidelines
	jsonStr := guidelines.ExtractJSON(out)
	if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &g) != nil {
		// Unparseable response: keep the raw text next to the guideline file.
		raw := strings.TrimSuffix(guidelines.Path(req.Folder), ".json") + ".md"
		_ = os.WriteFile(raw, []byte(out), 0644)
		c.log("guideline response was not JSON; raw text saved", models.LevelInfo)
		return out, nil
	}
	if err := guidelines.Save(req.Folder, &g); err != nil {
		return "", fmt.Errorf("save guidelines: %w", err)
	}
	count := len(g.Common)
	for _, items := range g.Categories {
		count += len(items)
	}
	c.log(fmt.Sprintf("✓ guidelines generated (%d items)", count), models.LevelSuccess)
	return guidelines.Render(&g), nil
}

// execRun is the real analyzer invocation: prompt on stdin, staged file names
// as arguments, stdout as the result.
func (c *CLI) execRun(ctx context.Context, dir, prompt string, files []string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	args := []string{"-m", c.cfg.Model, "-o", "text"}
	args = append(args, files...)
	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if extra := strings.TrimSpace(stdout.String()); extra != "" {
			detail = detail + "\n" + extra
		}
		return "", fmt.Errorf("%s: %s", invocationStatus(err), strings.TrimSpace(detail))
	}
	return cleanOutput(stdout.String()), nil
}

func invocationStatus(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return err.Error()
}

// cleanOutput drops known CLI chatter from analyzer stdout.
func cleanOutput(out string) string {
	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, line := range lines {
		noisy := false
		for _, n := range noiseLines {
			if strings.Contains(line, n) {
				noisy = true
				break
			}
		}
		if !noisy {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (c *CLI) historyContext(ctx context.Context, folder string) string {
	if c.history == nil {
		return ""
	}
	entries, err := c.history.ByFolder(ctx, folder)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("history load failed", zap.String("folder", folder), zap.Error(err))
		}
		return ""
	}
	return history.BuildContext(entries)
}

func (c *CLI) guidelineSection(folder string, names ...string) string {
	g, err := guidelines.Load(folder)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("guidelines load failed", zap.String("folder", folder), zap.Error(err))
		}
		return ""
	}
	relevant := guidelines.Relevant(g, names...)
	if relevant == "" {
		return ""
	}
	return "\n## Applicable guidelines\n" + relevant + "\n"
}

func (c *CLI) log(message, level string) {
	if c.bus != nil {
		c.bus.Publish(models.ChannelLog, models.LogEvent{Message: message, Level: level})
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
