package engines

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

type mineruEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type mineruTask struct {
	TaskID     string `json:"task_id"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

func decodeMinerU(raw []byte) (mineruTask, error) {
	var env mineruEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return mineruTask{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		return mineruTask{}, fmt.Errorf("mineru api code %d: %s", env.Code, env.Msg)
	}
	var task mineruTask
	if err := json.Unmarshal(env.Data, &task); err != nil {
		return mineruTask{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}

func (m *MinerU) extractAPI(ctx context.Context, path string) ([]extraction.PageResult, error) {
	url, cleanup, err := m.publisher.Publish(ctx, path)
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "publish source", err)
	}
	defer cleanup()

	raw, err := postJSON(ctx, joinURL(m.apiURL, "extract/task"), m.token, map[string]any{
		"url":            url,
		"is_ocr":         true,
		"enable_formula": true,
		"enable_table":   true,
	})
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "create task", err)
	}
	task, err := decodeMinerU(raw)
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "create task", err)
	}
	logCtx := slog.With("engine", models.EngineMinerU, "taskId", task.TaskID)
	logCtx.Info("MinerU task created.")

	zipURL, err := m.waitForTask(ctx, logCtx, task.TaskID)
	if err != nil {
		return nil, err
	}

	archive, err := getBytes(ctx, zipURL, "")
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "download result", err)
	}
	content, err := readZipEntry(archive, "content_list.json")
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "expected output missing", err)
	}
	pages, err := ParseContentList(content)
	if err != nil {
		return nil, extraction.EngineError(models.EngineMinerU, "decode content list", err)
	}
	return pages, nil
}

func (m *MinerU) waitForTask(ctx context.Context, logCtx *slog.Logger, taskID string) (string, error) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		raw, err := getBytes(ctx, joinURL(m.apiURL, "extract/task/"+taskID), m.token)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", extraction.EngineError(models.EngineMinerU, "poll task", err)
		}
		task, err := decodeMinerU(raw)
		if err != nil {
			return "", extraction.EngineError(models.EngineMinerU, "poll task", err)
		}
		switch task.State {
		case "done":
			if task.FullZipURL == "" {
				return "", extraction.EngineError(models.EngineMinerU, "task done without result", nil)
			}
			return task.FullZipURL, nil
		case "failed":
			return "", extraction.EngineError(models.EngineMinerU, "task failed", errors.New(task.ErrMsg))
		}
		logCtx.Debug("MinerU task pending.", "state", task.State)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func readZipEntry(archive []byte, suffix string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open result zip: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, suffix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("no %s in result zip", suffix)
}

type contentItem struct {
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	TextLevel    int       `json:"text_level"`
	TableBody    string    `json:"table_body"`
	TableCaption []string  `json:"table_caption"`
	ImgCaption   []string  `json:"img_caption"`
	PageIdx      int       `json:"page_idx"`
	BBox         []float64 `json:"bbox"`
}

func (c contentItem) text() string {
	switch c.Type {
	case "table":
		return strings.TrimSpace(strings.Join(append(c.TableCaption, c.TableBody), "\n"))
	case "image":
		return strings.TrimSpace(strings.Join(c.ImgCaption, "\n"))
	default:
		return c.Text
	}
}

// ParseContentList groups MinerU's flat content list by page. Only pages
// that carry at least one item are returned, in page order; placing them
// against the source page count is left to the caller.
func ParseContentList(raw []byte) ([]extraction.PageResult, error) {
	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	byPage := make(map[int]*extraction.PageResult)
	for _, it := range items {
		if it.PageIdx < 0 {
			continue
		}
		res, ok := byPage[it.PageIdx]
		if !ok {
			res = &extraction.PageResult{PageNumber: it.PageIdx + 1}
			byPage[it.PageIdx] = res
		}
		t := it.text()
		if strings.TrimSpace(t) == "" {
			continue
		}
		typ := it.Type
		if typ == "text" && it.TextLevel > 0 {
			typ = "title"
		}
		blk := extraction.Block{Type: typ, Text: t}
		if len(it.BBox) == 4 {
			blk.BBox = &extraction.BBox{X0: it.BBox[0], Y0: it.BBox[1], X1: it.BBox[2], Y1: it.BBox[3]}
		}
		res.Blocks = append(res.Blocks, blk)
	}
	if len(byPage) == 0 {
		return nil, nil
	}

	results := make([]extraction.PageResult, 0, len(byPage))
	for _, idx := range slices.Sorted(maps.Keys(byPage)) {
		res := byPage[idx]
		res.Text = extraction.JoinBlocks(res.Blocks, "\n\n")
		results = append(results, *res)
	}
	return results, nil
}
