package digest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/digest/internal/llm"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/tracker"
)

// maxConcurrentFetches bounds parallel history requests per digest.
const maxConcurrentFetches = 4

// HistoryProvider fetches recent messages for a channel, oldest first.
type HistoryProvider interface {
	FetchMessages(ctx context.Context, channel string, hours int) ([]models.Message, error)
}

// Service builds channel, project and issue digests for a user.
type Service struct {
	history    HistoryProvider
	summarizer llm.Summarizer
	settings   *settings.Manager
	projects   *projects.Manager
	tracker    *tracker.Tracker
	log        *slog.Logger
}

// NewService wires a digest service. A nil summarizer yields digests with
// the filtered payload only.
func NewService(h HistoryProvider, s llm.Summarizer, sm *settings.Manager, pm *projects.Manager, t *tracker.Tracker, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{history: h, summarizer: s, settings: sm, projects: pm, tracker: t, log: log}
}

// Request describes one digest invocation.
type Request struct {
	User     string
	Channels []string
	// Hours is the look-back window. Zero uses the user's default.
	Hours int
	// Keywords overrides the user's keyword filter when non-nil.
	Keywords []string
	// ExcludeAuthorID drops messages whose AuthorID matches, typically the
	// requester's own.
	ExcludeAuthorID string
}

// Result is a finished digest.
type Result struct {
	Kind     llm.Kind     `json:"kind"`
	Project  string       `json:"project,omitempty"`
	Channels []string     `json:"channels"`
	Hours    int          `json:"hours"`
	Payload  *Payload     `json:"payload"`
	Summary  *llm.Summary `json:"summary,omitempty"`
	// IssueTypes and Priorities are set for issue digests.
	IssueTypes []string            `json:"issue_types,omitempty"`
	Priorities []string            `json:"priorities,omitempty"`
	Tracked    *tracker.ScanResult `json:"-"`
	Created    []*models.Issue     `json:"created_issues,omitempty"`
}

// Footer describes what the digest was built from.
func (r *Result) Footer() string {
	filter := "No keyword filtering"
	if len(r.Payload.Keywords) > 0 {
		filter = "Keywords: " + strings.Join(r.Payload.Keywords, ", ")
	}
	return fmt.Sprintf("Analyzed %d relevant messages • %s", r.Payload.MatchedCount(), filter)
}

// resolve fills hours and keywords from the user's settings.
func (s *Service) resolve(ctx context.Context, req *Request) (models.Settings, error) {
	st, err := s.settings.Get(ctx, req.User)
	if err != nil {
		return st, err
	}
	if req.Hours == 0 {
		req.Hours = st.DefaultHours
	}
	if !models.ValidHours(req.Hours) {
		return st, fmt.Errorf("%w: hours must be between %d and %d, got %d",
			models.ErrValidation, models.MinHours, models.MaxHours, req.Hours)
	}
	if req.Keywords == nil {
		req.Keywords = st.Keywords
	}
	req.Channels = projects.NormalizeChannels(req.Channels)
	if len(req.Channels) == 0 {
		return st, fmt.Errorf("%w: at least one channel is required", models.ErrValidation)
	}
	return st, nil
}

// fetch pulls every channel's history in parallel.
func (s *Service) fetch(ctx context.Context, req Request) (map[string][]models.Message, error) {
	var mu sync.Mutex
	out := make(map[string][]models.Message, len(req.Channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, ch := range req.Channels {
		g.Go(func() error {
			msgs, err := s.history.FetchMessages(gctx, ch, req.Hours)
			if err != nil {
				return fmt.Errorf("fetch #%s: %w", ch, err)
			}
			if req.ExcludeAuthorID != "" {
				msgs = slices.DeleteFunc(slices.Clone(msgs), func(m models.Message) bool {
					return m.AuthorID == req.ExcludeAuthorID
				})
			}
			mu.Lock()
			out[ch] = msgs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// summarize calls the summarizer when there is something to summarize and
// fills missing bullet links from the matching excerpt.
func (s *Service) summarize(ctx context.Context, res *Result, sr llm.SummaryRequest) error {
	if s.summarizer == nil || res.Payload.MatchedCount() == 0 {
		return nil
	}
	sr.Lines = res.Payload.Lines()
	sum, err := s.summarizer.Summarize(ctx, sr)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	for i := range sum.Bullets {
		if sum.Bullets[i].Link == "" && i < len(res.Payload.Combined) {
			sum.Bullets[i].Link = res.Payload.Combined[i].Permalink
		}
	}
	res.Summary = sum
	return nil
}

// ChannelDigest summarizes one or more channels with the user's settings.
func (s *Service) ChannelDigest(ctx context.Context, req Request) (*Result, error) {
	st, err := s.resolve(ctx, &req)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Kind:     llm.KindChannel,
		Channels: req.Channels,
		Hours:    req.Hours,
		Payload:  Aggregate(raw, req.Keywords),
	}
	s.log.Debug("channel digest", "user", req.User, "channels", req.Channels,
		"matched", res.Payload.MatchedCount(), "total", res.Payload.TotalCount())

	err = s.summarize(ctx, res, llm.SummaryRequest{
		Kind:         llm.KindChannel,
		Channels:     req.Channels,
		CustomPrompt: st.Prompt,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ProjectDigest summarizes a project's channels with the project's keywords.
// Inactive projects are refused.
func (s *Service) ProjectDigest(ctx context.Context, user, name string, hours int, excludeAuthorID string) (*Result, error) {
	p, err := s.projects.Get(ctx, user, name)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: project %q is inactive", models.ErrValidation, name)
	}

	req := Request{
		User:            user,
		Channels:        p.Channels,
		Hours:           hours,
		Keywords:        slices.Clone(p.Keywords),
		ExcludeAuthorID: excludeAuthorID,
	}
	if req.Keywords == nil {
		req.Keywords = []string{}
	}
	st, err := s.resolve(ctx, &req)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Kind:     llm.KindProject,
		Project:  p.Name,
		Channels: req.Channels,
		Hours:    req.Hours,
		Payload:  Aggregate(raw, req.Keywords),
	}
	err = s.summarize(ctx, res, llm.SummaryRequest{
		Kind:         llm.KindProject,
		Project:      p.Name,
		Channels:     req.Channels,
		CustomPrompt: st.Prompt,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// IssueDigest keeps only messages that mention an issue keyword, summarizes
// them and, when track is set, records each as an open issue.
func (s *Service) IssueDigest(ctx context.Context, req Request, track bool) (*Result, error) {
	if req.Keywords == nil {
		req.Keywords = []string{}
	}
	st, err := s.resolve(ctx, &req)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	classifier := s.tracker.Classifier()
	payload := Aggregate(raw, req.Keywords)
	types := map[string]bool{}
	prios := map[models.IssuePriority]bool{}

	payload.Combined = payload.Combined[:0]
	for i := range payload.Channels {
		cd := &payload.Channels[i]
		kept := cd.Excerpts[:0]
		for _, m := range cd.Excerpts {
			groups := classifier.Detect(m.Text)
			if len(groups) == 0 {
				continue
			}
			for _, g := range groups {
				types[g] = true
			}
			prios[classifier.Priority(m.Text)] = true
			kept = append(kept, m)
		}
		cd.Excerpts = kept
		cd.MatchedCount = len(kept)
		payload.Combined = append(payload.Combined, kept...)
	}

	res := &Result{
		Kind:     llm.KindIssue,
		Channels: req.Channels,
		Hours:    req.Hours,
		Payload:  payload,
	}
	for g := range types {
		res.IssueTypes = append(res.IssueTypes, g)
	}
	slices.Sort(res.IssueTypes)
	for _, p := range models.IssuePriorities {
		if prios[p] {
			res.Priorities = append(res.Priorities, string(p))
		}
	}

	if track && len(payload.Combined) > 0 {
		scan, err := s.tracker.Scan(ctx, req.User, payload.Combined)
		if err != nil {
			return nil, err
		}
		res.Tracked = scan
		res.Created = scan.Created
		for _, me := range scan.Errors {
			s.log.Warn("skipped malformed message", "user", req.User, "index", me.Index, "error", me.Err)
		}
	}

	err = s.summarize(ctx, res, llm.SummaryRequest{
		Kind:         llm.KindIssue,
		Channels:     req.Channels,
		CustomPrompt: st.Prompt,
		IssueTypes:   res.IssueTypes,
		Priorities:   res.Priorities,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
