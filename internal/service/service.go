// Package service exposes the search engine over the JSON-RPC method
// table. Handlers are registered explicitly; nothing is reachable that
// is not listed here.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/search/mode"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/domain/search/settings"
	"github.com/kailas-cloud/semdex/internal/transport/jsonrpc"
	searchuc "github.com/kailas-cloud/semdex/internal/usecase/search"
	statusuc "github.com/kailas-cloud/semdex/internal/usecase/status"
)

// Service wires the use cases into RPC handlers. The listener binds
// before data loading finishes, so the engine arrives later via Attach;
// until status reports ready only get_status answers.
type Service struct {
	logger *zap.Logger
	status *statusuc.Service
	engine *searchuc.Service
	embed  searchuc.Embedder
	stop   func()
}

// New creates the RPC service. stop initiates daemon shutdown and is
// invoked by the stop_server method.
func New(logger *zap.Logger, status *statusuc.Service, stop func()) *Service {
	return &Service{logger: logger, status: status, stop: stop}
}

// Attach installs the loaded engine. Must be called before the status
// service is marked ready; the readiness flag orders the write.
func (s *Service) Attach(engine *searchuc.Service, embed searchuc.Embedder) {
	s.engine = engine
	s.embed = embed
}

// RegisterAll installs the method table on the server.
func (s *Service) RegisterAll(srv *jsonrpc.Server) {
	srv.Register("get_status", s.getStatus)
	srv.Register("search_similar", s.searchSimilar)
	srv.Register("vector_search", s.vectorSearch)
	srv.Register("search_posts_by_text", s.searchPostsByText)
	srv.Register("get_posts_by_tag", s.getPostsByTag)
	srv.Register("get_user_stats", s.getUserStats)
	srv.Register("get_database_stats", s.getDatabaseStats)
	srv.Register("embed_text", s.embedText)
	srv.Register("stop_server", s.stopServer)
}

func (s *Service) requireReady() error {
	if !s.status.Ready() {
		return fmt.Errorf("%w: initialization has not completed", domain.ErrNotReady)
	}
	return nil
}

func decodeParams[T any](params json.RawMessage, into *T) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fmt.Errorf("%w: invalid params: %v", domain.ErrValidation, err)
	}
	return nil
}

type statusResponse struct {
	statusuc.Report
	AvailableModes []mode.Mode `json:"available_modes"`
}

func (s *Service) getStatus(_ context.Context, _ json.RawMessage) (any, error) {
	resp := statusResponse{Report: s.status.Report()}
	if resp.Ready {
		resp.AvailableModes = s.engine.AvailableModes()
	}
	return resp, nil
}

type searchSimilarParams struct {
	Query    string             `json:"query"`
	Settings *settings.Settings `json:"search_settings"`
	Mode     mode.Mode          `json:"mode"`
	Weights  []float64          `json:"weights"`
}

func (s *Service) searchSimilar(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p searchSimilarParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	st := settings.Default()
	if p.Settings != nil {
		st = *p.Settings
	}
	if p.Mode == "" {
		p.Mode = mode.Content
	}
	logpkg.FromContext(ctx).Debug("similarity search",
		zap.String("mode", string(p.Mode)),
		zap.Int("top_k", st.TopK()),
	)
	return s.engine.Search(ctx, p.Query, st, p.Mode, p.Weights)
}

type vectorSearchParams struct {
	Query   string    `json:"query"`
	TopK    *int      `json:"top_k"`
	Mode    mode.Mode `json:"mode"`
	Weights []float64 `json:"weights"`
}

func (s *Service) vectorSearch(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p vectorSearchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if p.Mode == "" {
		p.Mode = mode.Content
	}

	topK := 0
	if p.TopK != nil {
		if *p.TopK <= 0 {
			return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrValidation)
		}
		topK = *p.TopK
	}

	ranked, err := s.engine.RankAll(ctx, p.Query, topK, p.Mode, p.Weights)
	if err != nil {
		return nil, err
	}
	if topK > 0 {
		// bounded results fit one message; only unbounded rankings
		// take the chunked path
		return ranked, nil
	}
	return jsonrpc.NewStream(ranked), nil
}

type textSearchParams struct {
	SearchTerm string    `json:"search_term"`
	Limit      int       `json:"limit"`
	Source     mode.Mode `json:"source"`
}

func (s *Service) searchPostsByText(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p textSearchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SearchTerm == "" {
		return nil, fmt.Errorf("%w: search_term is required", domain.ErrValidation)
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Source == "" {
		p.Source = mode.Content
	}
	return s.engine.SearchByText(ctx, p.SearchTerm, p.Limit, p.Source)
}

type tagParams struct {
	Tag   string `json:"tag"`
	Limit int    `json:"limit"`
}

func (s *Service) getPostsByTag(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p tagParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	return s.engine.PostsByTag(ctx, p.Tag, p.Limit)
}

type userStatsParams struct {
	Limit int `json:"limit"`
}

func (s *Service) getUserStats(_ context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p userStatsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	return s.status.UserStats(p.Limit), nil
}

func (s *Service) getDatabaseStats(_ context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.status.DBStats(), nil
}

type embedTextParams struct {
	Text string `json:"text"`
}

type embedTextResponse struct {
	Vector []float32 `json:"vector"`
}

func (s *Service) embedText(ctx context.Context, params json.RawMessage) (any, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var p embedTextParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Text == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrValidation)
	}
	vec, err := s.embed.Embed(ctx, p.Text)
	if err != nil {
		return nil, err
	}
	return embedTextResponse{Vector: vec}, nil
}

func (s *Service) stopServer(_ context.Context, _ json.RawMessage) (any, error) {
	s.logger.Info("stop requested over rpc")
	if s.stop != nil {
		// asynchronous so the response still reaches the caller
		go s.stop()
	}
	return map[string]string{"status": "stopping"}, nil
}
