package services

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/ratelimit"
	"github.com/yoockh/hiready/internal/utils"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeJobRepo struct {
	mu   sync.Mutex
	rows map[string]models.JobInfo
}

func newFakeJobRepo(rows ...models.JobInfo) *fakeJobRepo {
	r := &fakeJobRepo{rows: map[string]models.JobInfo{}}
	for _, j := range rows {
		r.rows[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) Insert(_ context.Context, j *models.JobInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[j.ID] = *j
	return nil
}

func (r *fakeJobRepo) Update(_ context.Context, j *models.JobInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[j.ID]
	if !ok || cur.UserID != j.UserID {
		return utils.ErrNotFound
	}
	r.rows[j.ID] = *j
	return nil
}

func (r *fakeJobRepo) GetOwned(_ context.Context, id, userID string) (*models.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok || j.UserID != userID {
		return nil, utils.ErrNotFound
	}
	return &j, nil
}

func (r *fakeJobRepo) ListByUser(_ context.Context, userID string) ([]models.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.JobInfo
	for _, j := range r.rows {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, nil
}

// fakeInterviewRepo mirrors the SQL repository's write rules.
type fakeInterviewRepo struct {
	mu      sync.Mutex
	jobs    *fakeJobRepo
	rows    map[string]models.Interview
	inserts int
}

func newFakeInterviewRepo(jobs *fakeJobRepo) *fakeInterviewRepo {
	return &fakeInterviewRepo{jobs: jobs, rows: map[string]models.Interview{}}
}

func (r *fakeInterviewRepo) Insert(_ context.Context, iv *models.Interview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	r.rows[iv.ID] = *iv
	return nil
}

func (r *fakeInterviewRepo) owner(jobInfoID string) string {
	r.jobs.mu.Lock()
	defer r.jobs.mu.Unlock()
	return r.jobs.rows[jobInfoID].UserID
}

func (r *fakeInterviewRepo) GetOwned(_ context.Context, id string) (*models.OwnedInterview, error) {
	r.mu.Lock()
	iv, ok := r.rows[id]
	r.mu.Unlock()
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &models.OwnedInterview{Interview: iv, OwnerID: r.owner(iv.JobInfoID)}, nil
}

func (r *fakeInterviewRepo) ListByJobInfo(_ context.Context, jobInfoID string) ([]models.Interview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Interview
	for _, iv := range r.rows {
		if iv.JobInfoID == jobInfoID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeInterviewRepo) SetConversationID(_ context.Context, id, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	if iv.ConversationID != nil {
		if *iv.ConversationID == conversationID {
			return nil
		}
		return utils.ErrConflict
	}
	iv.ConversationID = &conversationID
	r.rows[id] = iv
	return nil
}

func (r *fakeInterviewRepo) AdvanceDuration(_ context.Context, id string, d models.CallDuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	if d > iv.Duration {
		iv.Duration = d
		r.rows[id] = iv
	}
	return nil
}

func (r *fakeInterviewRepo) SetFeedback(_ context.Context, id, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	if iv.Feedback != nil {
		return utils.ErrConflict
	}
	iv.Feedback = &feedback
	r.rows[id] = iv
	return nil
}

func (r *fakeInterviewRepo) CountActivatedByOwner(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	rows := make([]models.Interview, 0, len(r.rows))
	for _, iv := range r.rows {
		rows = append(rows, iv)
	}
	r.mu.Unlock()

	var n int64
	for _, iv := range rows {
		if iv.ConversationID != nil && r.owner(iv.JobInfoID) == userID {
			n++
		}
	}
	return n, nil
}

type fakeEvaluator struct {
	allow bool
	calls int
}

func (f *fakeEvaluator) CanCreate(context.Context, *models.Identity) bool {
	f.calls++
	return f.allow
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	calls    int
}

func (f *fakeLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeTranscriptRepo struct {
	rows []models.TranscriptFragment
}

func (f *fakeTranscriptRepo) Append(_ context.Context, t *models.TranscriptFragment) error {
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTranscriptRepo) AttachConversation(_ context.Context, interviewID, conversationID string) error {
	for i := range f.rows {
		if f.rows[i].InterviewID == interviewID && f.rows[i].ConversationID == "" {
			f.rows[i].ConversationID = conversationID
		}
	}
	return nil
}

func (f *fakeTranscriptRepo) ListByInterview(_ context.Context, interviewID string, _ int64) ([]models.TranscriptFragment, error) {
	var out []models.TranscriptFragment
	for _, r := range f.rows {
		if r.InterviewID == interviewID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, userID string) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) Upsert(_ context.Context, u *models.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) SetEntitlements(_ context.Context, userID string, entitlements []string) error {
	u, ok := f.users[userID]
	if !ok {
		return utils.ErrNotFound
	}
	u.Entitlements = entitlements
	return nil
}

type fakeLLM struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeLLM) StreamAnswer(_ context.Context, prompt string) (<-chan string, <-chan error) {
	f.prompts = append(f.prompts, prompt)
	out := make(chan string, 2)
	errs := make(chan error, 1)
	if f.err != nil {
		errs <- f.err
	} else {
		out <- f.text
	}
	close(out)
	close(errs)
	return out, errs
}

func (f *fakeLLM) Close() error { return nil }
