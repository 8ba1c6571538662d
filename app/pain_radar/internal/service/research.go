package service

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/engine"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/errs"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/storage"
)

// Runner 执行一次研究任务
type Runner interface {
	Run(ctx context.Context, opts engine.RunOptions) (*model.Report, error)
}

// ResearchRequest POST /v1/research 请求体
type ResearchRequest struct {
	JobID       string           `json:"job_id,omitempty"`
	Hypothesis  model.Hypothesis `json:"hypothesis"`
	Communities []string         `json:"communities,omitempty"`
}

// ResearchService 研究任务的 HTTP 接口
type ResearchService struct {
	runner Runner
	store  storage.Store
	log    *log.Helper
}

// NewResearchService store 为空时不提供结果查询
func NewResearchService(runner Runner, store storage.Store, logger log.Logger) *ResearchService {
	return &ResearchService{
		runner: runner,
		store:  store,
		log:    log.NewHelper(logger),
	}
}

// Research 同步执行研究并返回完整报告
func (s *ResearchService) Research(ctx http.Context) error {
	var req ResearchRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.Hypothesis.Text) == "" {
		return kerrors.BadRequest("INVALID_REQUEST", "hypothesis.text is required")
	}

	report, err := s.runner.Run(ctx, engine.RunOptions{
		JobID:       req.JobID,
		Hypothesis:  req.Hypothesis,
		Communities: req.Communities,
		ProgressCallback: func(status string, progress int) {
			s.log.Debugf("job %s: %s (%d%%)", req.JobID, status, progress)
		},
	})
	if err != nil {
		s.log.Errorf("research failed [%s]: %v", errs.KindOf(err), err)
		return err
	}
	return ctx.Result(200, report)
}

// GetResult 读取已保存的报告
func (s *ResearchService) GetResult(ctx http.Context) error {
	if s.store == nil {
		return kerrors.ServiceUnavailable("STORAGE_DISABLED", "result storage is not configured")
	}
	id := ctx.Vars().Get("id")
	report, err := s.store.LoadResult(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return kerrors.NotFound("RESULT_NOT_FOUND", "no result for job "+id)
	}
	if err != nil {
		s.log.Errorf("load result %s: %v", id, err)
		return errs.Persistence(err)
	}
	return ctx.Result(200, report)
}
