package handlers

import (
	"context"
	"sync"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/utils"
)

type fakeAdmission struct {
	res   *services.AdmissionResult
	err   error
	calls int
}

func (f *fakeAdmission) CreateSession(context.Context, *models.Identity, string) (*services.AdmissionResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeJobs struct {
	job *models.JobInfo
}

func (f *fakeJobs) Create(context.Context, string, services.JobInfoInput) (*models.JobInfo, error) {
	return f.job, nil
}

func (f *fakeJobs) Update(context.Context, string, string, services.JobInfoInput) (*models.JobInfo, error) {
	return f.job, nil
}

func (f *fakeJobs) GetOwned(_ context.Context, userID, id string) (*models.JobInfo, error) {
	if f.job == nil || f.job.ID != id || f.job.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, "fakeJobs.GetOwned", services.MessageNotPermitted, nil)
	}
	return f.job, nil
}

func (f *fakeJobs) List(context.Context, string) ([]models.JobInfo, error) {
	return []models.JobInfo{*f.job}, nil
}

type fakeInterviews struct {
	mu        sync.Mutex
	convCalls []string
	durations []models.CallDuration
}

func (f *fakeInterviews) Get(_ context.Context, _, id string) (*models.Interview, error) {
	return &models.Interview{ID: id}, nil
}

func (f *fakeInterviews) ListByJobInfo(context.Context, string, string) ([]models.Interview, error) {
	return nil, nil
}

func (f *fakeInterviews) SetConversationID(_ context.Context, _, _, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls = append(f.convCalls, conversationID)
	return nil
}

func (f *fakeInterviews) RecordDuration(_ context.Context, _, _ string, d models.CallDuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = append(f.durations, d)
	return nil
}

func (f *fakeInterviews) Update(context.Context, string, string, services.InterviewPatch) error {
	return nil
}

func (f *fakeInterviews) snapshot() ([]string, []models.CallDuration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.convCalls...), append([]models.CallDuration(nil), f.durations...)
}
