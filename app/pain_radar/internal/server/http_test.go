package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/pain_radar/app/pain_radar/internal/service"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/engine"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/errs"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/storage"
)

// mockRunner 模拟引擎，记录最近一次请求
type mockRunner struct {
	err  error
	last engine.RunOptions
}

func (m *mockRunner) Run(_ context.Context, opts engine.RunOptions) (*model.Report, error) {
	m.last = opts
	if m.err != nil {
		return nil, m.err
	}
	id := opts.JobID
	if id == "" {
		id = "generated"
	}
	return &model.Report{JobID: id, Hypothesis: opts.Hypothesis}, nil
}

// mockStore 模拟结果存储
type mockStore struct {
	reports map[string]*model.Report
	err     error
}

func (m *mockStore) SaveResult(context.Context, string, *model.Report) error { return nil }

func (m *mockStore) LoadResult(_ context.Context, id string) (*model.Report, error) {
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.reports[id]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) Close() error { return nil }

func newTestServer(t *testing.T, runner service.Runner, store storage.Store) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	srv := NewHTTPServer(cfg, service.NewResearchService(runner, store, log.DefaultLogger))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) (*nethttp.Response, []byte) {
	t.Helper()
	buf, _ := json.Marshal(body)
	resp, err := nethttp.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestResearch(t *testing.T) {
	runner := &mockRunner{}
	ts := newTestServer(t, runner, nil)

	resp, data := post(t, ts.URL+"/v1/research", service.ResearchRequest{
		JobID:       "job-1",
		Hypothesis:  model.Hypothesis{Text: "freelancers struggle with invoicing", AppName: "Notion"},
		Communities: []string{"r/freelance"},
	})
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	var report model.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.JobID != "job-1" || report.Hypothesis.AppName != "Notion" {
		t.Errorf("unexpected report %+v", report)
	}
	if len(runner.last.Communities) != 1 || runner.last.Communities[0] != "r/freelance" {
		t.Errorf("communities not forwarded: %+v", runner.last)
	}
}

func TestResearch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		runErr     error
		body       any
		wantStatus int
		wantReason string
	}{
		{
			name:       "missing hypothesis",
			body:       service.ResearchRequest{},
			wantStatus: nethttp.StatusBadRequest,
			wantReason: "INVALID_REQUEST",
		},
		{
			name:       "source failure",
			runErr:     errs.SourceFetch(errors.New("reddit down")),
			body:       service.ResearchRequest{Hypothesis: model.Hypothesis{Text: "x"}},
			wantStatus: nethttp.StatusBadGateway,
			wantReason: string(errs.KindSourceFetch),
		},
		{
			name:       "persistence failure",
			runErr:     errs.Persistence(errors.New("disk full")),
			body:       service.ResearchRequest{Hypothesis: model.Hypothesis{Text: "x"}},
			wantStatus: nethttp.StatusInternalServerError,
			wantReason: string(errs.KindPersistence),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &mockRunner{err: tt.runErr}, nil)
			resp, data := post(t, ts.URL+"/v1/research", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, tt.wantStatus, data)
			}
			var status struct {
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(data, &status); err != nil || status.Reason != tt.wantReason {
				t.Errorf("reason = %q (%v), want %q", status.Reason, err, tt.wantReason)
			}
		})
	}
}

func TestGetResult(t *testing.T) {
	store := &mockStore{reports: map[string]*model.Report{"job-9": {JobID: "job-9"}}}
	ts := newTestServer(t, &mockRunner{}, store)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/v1/results/job-9", nethttp.StatusOK},
		{"/v1/results/missing", nethttp.StatusNotFound},
		{"/healthz", nethttp.StatusOK},
	}
	for _, tt := range tests {
		resp, err := nethttp.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
		}
	}
}

func TestGetResult_NoStorage(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, nil)
	resp, err := nethttp.Get(ts.URL + "/v1/results/job-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
