package service

import (
	"context"
	"sort"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CourseSweepResult counts the outcome of sweeping one course.
type CourseSweepResult struct {
	CourseID        primitive.ObjectID `json:"courseId"`
	Learners        int                `json:"learners"`
	Issued          int                `json:"issued"`
	AlreadyIssued   int                `json:"alreadyIssued"`
	IncompleteUsers int                `json:"incompleteUsers"`
}

// SweepFailure is one course or (user, course) the sweep could not settle.
// UserID is nil when the whole course failed.
type SweepFailure struct {
	CourseID primitive.ObjectID  `json:"courseId"`
	UserID   *primitive.ObjectID `json:"userId,omitempty"`
	Error    string              `json:"error"`
}

// SweepReport summarizes one reconciliation run.
type SweepReport struct {
	StartedAt       time.Time           `json:"startedAt"`
	FinishedAt      time.Time           `json:"finishedAt"`
	Courses         []CourseSweepResult `json:"courses"`
	Issued          int                 `json:"issued"`
	AlreadyIssued   int                 `json:"alreadyIssued"`
	IncompleteUsers int                 `json:"incompleteUsers"`
	Failures        []SweepFailure      `json:"failures"`
}

// Partial is true when some courses or users could not be processed.
func (r *SweepReport) Partial() bool {
	return len(r.Failures) > 0
}

// certificateIssuer is the part of CertificateService the sweep needs.
type certificateIssuer interface {
	Issue(ctx context.Context, userID, courseID primitive.ObjectID, completionDate time.Time) (*IssueResult, error)
}

// --- Service Interface ---
type SweepService interface {
	// RunSweep issues every missing certificate for users who completed a
	// course. It only returns an error when the course list itself cannot be
	// read; everything else is reported in SweepReport.Failures.
	RunSweep(ctx context.Context) (*SweepReport, error)
}

// --- Service Implementation ---
type sweepService struct {
	videoRepo   repository.VideoRepository
	recordRepo  repository.ViewingRecordRepository
	issuer      certificateIssuer
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func NewSweepService(
	videoRepo repository.VideoRepository,
	recordRepo repository.ViewingRecordRepository,
	issuer CertificateService,
	concurrency int,
	logger *zap.Logger,
) SweepService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &sweepService{
		videoRepo:   videoRepo,
		recordRepo:  recordRepo,
		issuer:      issuer,
		concurrency: concurrency,
		logger:      logger.Named("sweep"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type courseOutcome struct {
	result   CourseSweepResult
	failures []SweepFailure
}

func (s *sweepService) RunSweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{
		StartedAt: s.now(),
		Courses:   []CourseSweepResult{},
		Failures:  []SweepFailure{},
	}

	courseIDs, err := s.videoRepo.ListCourseIDsWithActiveVideos(ctx)
	if err != nil {
		return nil, dependencyUnavailable("list courses", err)
	}
	s.logger.Info("Sweep started", zap.Int("courses", len(courseIDs)), zap.Int("concurrency", s.concurrency))

	// Each worker writes only its own slot.
	outcomes := make([]courseOutcome, len(courseIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, courseID := range courseIDs {
		g.Go(func() error {
			outcomes[i] = s.sweepCourse(ctx, courseID)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, o := range outcomes {
		report.Courses = append(report.Courses, o.result)
		report.Issued += o.result.Issued
		report.AlreadyIssued += o.result.AlreadyIssued
		report.IncompleteUsers += o.result.IncompleteUsers
		report.Failures = append(report.Failures, o.failures...)
	}
	report.FinishedAt = s.now()

	fields := []zap.Field{
		zap.Int("courses", len(report.Courses)),
		zap.Int("issued", report.Issued),
		zap.Int("alreadyIssued", report.AlreadyIssued),
		zap.Int("incompleteUsers", report.IncompleteUsers),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	}
	if report.Partial() {
		s.logger.Warn("Sweep finished with failures", fields...)
	} else {
		s.logger.Info("Sweep finished", fields...)
	}
	return report, nil
}

func (s *sweepService) sweepCourse(ctx context.Context, courseID primitive.ObjectID) courseOutcome {
	out := courseOutcome{result: CourseSweepResult{CourseID: courseID}}
	courseFailure := func(err error) courseOutcome {
		s.logger.Warn("Sweep skipped course", zap.String("courseId", courseID.Hex()), zap.Error(err))
		out.failures = append(out.failures, SweepFailure{CourseID: courseID, Error: err.Error()})
		return out
	}

	if err := ctx.Err(); err != nil {
		return courseFailure(err)
	}

	required, err := s.videoRepo.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return courseFailure(dependencyUnavailable("list active videos", err))
	}
	if len(required) == 0 {
		// Deactivated since the course list was read.
		return out
	}

	records, err := s.recordRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return courseFailure(storageFailure("list viewing records", err))
	}

	byUser := groupByUser(records)
	userIDs := make([]primitive.ObjectID, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i].Hex() < userIDs[j].Hex() })
	out.result.Learners = len(userIDs)

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			uid := userID
			out.failures = append(out.failures, SweepFailure{CourseID: courseID, UserID: &uid, Error: err.Error()})
			continue
		}

		status := evaluateCompletion(courseID, required, byUser[userID], s.now())
		if !status.Complete {
			out.result.IncompleteUsers++
			continue
		}

		var completionDate time.Time
		if status.LatestCompletion != nil {
			completionDate = *status.LatestCompletion
		}
		result, err := s.issuer.Issue(ctx, userID, courseID, completionDate)
		if err != nil {
			uid := userID
			s.logger.Warn("Sweep could not issue certificate",
				zap.String("userId", userID.Hex()),
				zap.String("courseId", courseID.Hex()),
				zap.Error(err),
			)
			out.failures = append(out.failures, SweepFailure{CourseID: courseID, UserID: &uid, Error: err.Error()})
			continue
		}
		if result.Created {
			out.result.Issued++
		} else {
			out.result.AlreadyIssued++
		}
	}
	return out
}

func groupByUser(records []domain.ViewingRecord) map[primitive.ObjectID][]domain.ViewingRecord {
	byUser := make(map[primitive.ObjectID][]domain.ViewingRecord)
	for _, rec := range records {
		byUser[rec.UserID] = append(byUser[rec.UserID], rec)
	}
	return byUser
}
