package needleapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"stitchcore/internal/blob"
	"stitchcore/internal/core"
	"stitchcore/internal/design"
)

// ExportFormat names a loading sheet rendering.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatHTML ExportFormat = "html"
	FormatPNG  ExportFormat = "png"
)

// ExportFormats lists the renderings the worker can produce.
func ExportFormats() []ExportFormat {
	return []ExportFormat{FormatJSON, FormatCSV, FormatHTML, FormatPNG}
}

func parseFormat(raw string) (ExportFormat, bool) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJSON:
		return FormatJSON, true
	case FormatCSV:
		return FormatCSV, true
	case FormatHTML:
		return FormatHTML, true
	case FormatPNG:
		return FormatPNG, true
	default:
		return "", false
	}
}

// ExportStatus describes the lifecycle stage of an export job.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact is one stored loading sheet rendering.
type ExportArtifact struct {
	ID          string       `json:"id"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	Key         string       `json:"key"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export job and its artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Filename    string           `json:"filename"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request for the worker.
type ExportInput struct {
	SessionID   string
	Formats     []ExportFormat
	RequestedBy string
}

// ExportScheduler queues loading sheet exports and exposes job status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	ListExports(sessionID string) []ExportRecord
}

// SheetSource supplies the session state a loading sheet renders.
type SheetSource interface {
	Record(id string) (core.DesignRecord, error)
	Slots(id string) (core.SlotArray, error)
	Colors(id string) ([]core.Color, error)
}

// Worker renders loading sheets asynchronously and stores the artifacts in
// the blob store under exports/<session>/<job>/.
type Worker struct {
	source SheetSource
	store  blob.Store
	audit  core.AuditRecorder

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	Artifact ExportArtifact
	Payload  []byte
}

// NewWorker constructs an export worker. audit may be nil.
func NewWorker(source SheetSource, store blob.Store, audit core.AuditRecorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules a loading sheet export and returns the queued
// record. The session must exist at enqueue time.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.source == nil {
		return ExportRecord{}, fmt.Errorf("sheet source not configured")
	}
	rec, err := w.source.Record(input.SessionID)
	if err != nil {
		return ExportRecord{}, err
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if _, ok := parseFormat(string(format)); !ok {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		SessionID:   input.SessionID,
		Filename:    rec.Filename,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, id, ExportStatusQueued, "")

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return ExportRecord{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

// ListExports returns snapshots of the jobs for one session, newest first.
func (w *Worker) ListExports(sessionID string) []ExportRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ExportRecord, 0, len(w.jobs))
	for _, record := range w.jobs {
		if record.SessionID == sessionID {
			out = append(out, record.copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (w *Worker) process(task exportTask) {
	record := w.snapshot(task.id)
	if record == nil {
		return
	}

	w.updateStatus(task.id, ExportStatusRunning, "")

	sheet, err := w.loadSheet(task.input.SessionID)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("load session state: %v", err))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := materialize(format, sheet)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		stored, err := w.storeArtifact(task.input.SessionID, task.id, rendered)
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, stored)
	}

	w.complete(task.id, artifacts)
}

// loadingSheet is the session snapshot a rendering works from.
type loadingSheet struct {
	Design core.DesignRecord `json:"design"`
	Slots  core.SlotArray    `json:"slots"`
	Colors []core.Color      `json:"colors"`
}

func (w *Worker) loadSheet(sessionID string) (loadingSheet, error) {
	rec, err := w.source.Record(sessionID)
	if err != nil {
		return loadingSheet{}, err
	}
	slots, err := w.source.Slots(sessionID)
	if err != nil {
		return loadingSheet{}, err
	}
	colors, err := w.source.Colors(sessionID)
	if err != nil {
		return loadingSheet{}, err
	}
	return loadingSheet{Design: rec, Slots: slots, Colors: colors}, nil
}

func (w *Worker) storeArtifact(sessionID, jobID string, rendered renderedArtifact) (ExportArtifact, error) {
	artifact := rendered.Artifact
	if w.store == nil {
		return artifact, nil
	}
	key := fmt.Sprintf("exports/%s/%s/sheet.%s", sessionID, jobID, artifact.Format)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(rendered.Payload), blob.PutOptions{
		ContentType: artifact.ContentType,
	})
	if err != nil {
		return ExportArtifact{}, err
	}
	artifact.Key = key
	if info.Size > 0 {
		artifact.SizeBytes = info.Size
	}
	if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{Method: "GET"}); err == nil {
		artifact.URL = url
	} else {
		artifact.URL = info.URL
	}
	return artifact, nil
}

func (w *Worker) snapshot(id string) *ExportRecord {
	w.mu.RLock()
	record, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	return record
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status ExportStatus, reason string) {
	if w.audit == nil {
		return
	}
	record, ok := w.GetExport(id)
	if !ok {
		return
	}
	entry := core.AuditEntry{
		Operation:  "export_sheet",
		Status:     core.AuditStatusSuccess,
		Entity:     core.EntityDesignSession,
		EntityID:   record.SessionID,
		Detail:     fmt.Sprintf("job %s %s", id, status),
		OccurredAt: time.Now().UTC(),
	}
	if status == ExportStatusFailed {
		entry.Status = core.AuditStatusError
		entry.Error = reason
	}
	w.audit.Record(ctx, entry)
}

func materialize(format ExportFormat, sheet loadingSheet) (renderedArtifact, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(sheet)
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return newRendered(FormatJSON, "application/json", payload), nil
	case FormatCSV:
		payload, err := buildCSV(sheet)
		if err != nil {
			return renderedArtifact{}, err
		}
		return newRendered(FormatCSV, "text/csv", payload), nil
	case FormatHTML:
		return newRendered(FormatHTML, "text/html", buildSheetHTML(sheet)), nil
	case FormatPNG:
		payload, err := buildSwatchPNG(sheet.Slots)
		if err != nil {
			return renderedArtifact{}, err
		}
		return newRendered(FormatPNG, "image/png", payload), nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported export format %s", format)
	}
}

func newRendered(format ExportFormat, contentType string, payload []byte) renderedArtifact {
	return renderedArtifact{
		Artifact: ExportArtifact{
			ID:          newID(),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   time.Now().UTC(),
		},
		Payload: payload,
	}
}

func buildCSV(sheet loadingSheet) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"needle", "code", "name", "rgb"}); err != nil {
		return nil, err
	}
	for i, binding := range sheet.Slots {
		row := []string{fmt.Sprintf("%d", i+1), "", "", ""}
		if binding != nil {
			row[1] = design.DisplayCode(chartFor(sheet.Colors, binding.Code), binding.Code)
			row[2] = binding.Name
			row[3] = binding.RGB
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildSheetHTML(sheet loadingSheet) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(sheet.Design.Filename))
	buf.WriteString("</title></head><body><table>")
	buf.WriteString("<thead><tr><th>Needle</th><th>Code</th><th>Name</th><th>RGB</th></tr></thead><tbody>")
	for i, binding := range sheet.Slots {
		buf.WriteString("<tr><td>")
		fmt.Fprintf(buf, "%d", i+1)
		buf.WriteString("</td>")
		if binding == nil {
			buf.WriteString("<td></td><td></td><td></td>")
		} else {
			fmt.Fprintf(buf, "<td>%s</td><td>%s</td><td>#%s</td>",
				html.EscapeString(design.DisplayCode(chartFor(sheet.Colors, binding.Code), binding.Code)),
				html.EscapeString(binding.Name),
				html.EscapeString(binding.RGB))
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

// buildSwatchPNG draws one filled cell per needle slot, gray when the slot is
// empty.
func buildSwatchPNG(slots core.SlotArray) ([]byte, error) {
	const cell = 40
	width := cell * len(slots)
	height := cell
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	for i, binding := range slots {
		fill := color.RGBA{224, 224, 224, 255}
		if binding != nil {
			if r, g, b, ok := design.Channels(binding.RGB); ok {
				fill = color.RGBA{r, g, b, 255}
			}
		}
		rect := image.Rect(i*cell+1, 1, (i+1)*cell-1, height-1)
		draw.Draw(img, rect, &image.Uniform{fill}, image.Point{}, draw.Src)
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// chartFor looks up the chart of the color carrying code, for display code
// normalization.
func chartFor(colors []core.Color, code string) string {
	for _, c := range colors {
		if c.Code == code {
			return c.Chart
		}
	}
	return ""
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]ExportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
