package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"
	"github.com/alcyxob/lms-progress/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxCertificateIDAttempts bounds retries after a certificate id collision.
const maxCertificateIDAttempts = 3

// IssueResult reports the certificate for a (user, course) pair and whether
// this call created it.
type IssueResult struct {
	CertificateID string              `json:"certificateId"`
	Created       bool                `json:"created"`
	Certificate   *domain.Certificate `json:"certificate"`
}

// CompletionListener is notified when a viewing record reaches completed.
type CompletionListener interface {
	OnVideoCompleted(ctx context.Context, userID, courseID primitive.ObjectID)
}

// --- Service Interface ---
type CertificateService interface {
	CompletionListener

	// Issue creates the certificate for (userID, courseID) unless one exists.
	// It does not check eligibility; callers must have done so.
	Issue(ctx context.Context, userID, courseID primitive.ObjectID, completionDate time.Time) (*IssueResult, error)
	// IssueIfEligible evaluates completion and issues. Returns ErrNotEligible
	// when the course is not complete.
	IssueIfEligible(ctx context.Context, userID, courseID primitive.ObjectID) (*IssueResult, error)

	GetCertificate(ctx context.Context, id string) (*domain.Certificate, error)
	ListUserCertificates(ctx context.Context, userID primitive.ObjectID) ([]domain.Certificate, error)
	SetCertificateActive(ctx context.Context, id string, active bool) (*domain.Certificate, error)
	// DocumentURL renders the certificate, stores it and returns a presigned link.
	DocumentURL(ctx context.Context, id string) (string, error)
}

// --- Service Implementation ---
type certificateService struct {
	certRepo   repository.CertificateRepository
	userRepo   repository.UserRepository
	courseRepo repository.CourseRepository
	evaluator  CompletionEvaluator
	storage    storage.FileStorage // May be nil; documents are then unavailable
	logger     *zap.Logger

	now   func() time.Time
	newID func(time.Time) string
}

func NewCertificateService(
	certRepo repository.CertificateRepository,
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	evaluator CompletionEvaluator,
	fileStorage storage.FileStorage,
	logger *zap.Logger,
) CertificateService {
	return &certificateService{
		certRepo:   certRepo,
		userRepo:   userRepo,
		courseRepo: courseRepo,
		evaluator:  evaluator,
		storage:    fileStorage,
		logger:     logger.Named("certificates"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      NewCertificateID,
	}
}

// NewCertificateID builds an id of the form CERT-<base36 millis>-<12 hex>.
// The random part comes from a v4 UUID.
func NewCertificateID(at time.Time) string {
	stamp := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return "CERT-" + stamp + "-" + random
}

func (s *certificateService) Issue(ctx context.Context, userID, courseID primitive.ObjectID, completionDate time.Time) (*IssueResult, error) {
	if userID.IsZero() || courseID.IsZero() {
		return nil, invalidInput("userId and courseId are required")
	}

	// 1. Already issued?
	existing, err := s.certRepo.GetByUserAndCourse(ctx, userID, courseID)
	if err == nil {
		return &IssueResult{CertificateID: existing.ID, Created: false, Certificate: existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageFailure("find certificate", err)
	}

	// 2. Snapshot holder name and course title
	userName, courseTitle, err := s.snapshot(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if completionDate.IsZero() {
		completionDate = now
	}

	// 3. Insert; the unique (userId, courseId) index arbitrates concurrent issuers
	for attempt := 1; attempt <= maxCertificateIDAttempts; attempt++ {
		cert := &domain.Certificate{
			ID:             s.newID(now),
			UserID:         userID,
			CourseID:       courseID,
			UserName:       userName,
			CourseTitle:    courseTitle,
			CompletionDate: completionDate.UTC(),
			IsActive:       true,
			CreatedAt:      now,
		}

		err := s.certRepo.Create(ctx, cert)
		if err == nil {
			s.logger.Info("Certificate issued",
				zap.String("certificateId", cert.ID),
				zap.String("userId", userID.Hex()),
				zap.String("courseId", courseID.Hex()),
			)
			return &IssueResult{CertificateID: cert.ID, Created: true, Certificate: cert}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, storageFailure("create certificate", err)
		}

		// Either another issuer won the pair, or the id collided.
		winner, getErr := s.certRepo.GetByUserAndCourse(ctx, userID, courseID)
		if getErr == nil {
			s.logger.Debug("Concurrent issuance resolved to existing certificate",
				zap.String("certificateId", winner.ID),
				zap.String("userId", userID.Hex()),
				zap.String("courseId", courseID.Hex()),
			)
			return &IssueResult{CertificateID: winner.ID, Created: false, Certificate: winner}, nil
		}
		if !errors.Is(getErr, repository.ErrNotFound) {
			return nil, storageFailure("re-read certificate after conflict", getErr)
		}
		s.logger.Warn("Certificate id collision, retrying",
			zap.String("certificateId", cert.ID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w: no unique certificate id after %d attempts", ErrStorageFailure, maxCertificateIDAttempts)
}

func (s *certificateService) snapshot(ctx context.Context, userID, courseID primitive.ObjectID) (string, string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", dependencyUnavailable("user "+userID.Hex(), err)
	}
	userName := user.DisplayIdentity().Label()
	if userName == "" {
		return "", "", dependencyUnavailable("user "+userID.Hex()+" has no name or email", nil)
	}

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return "", "", dependencyUnavailable("course "+courseID.Hex(), err)
	}
	courseTitle := strings.TrimSpace(course.Title)
	if courseTitle == "" {
		return "", "", dependencyUnavailable("course "+courseID.Hex()+" has no title", nil)
	}
	return userName, courseTitle, nil
}

// IssueIfEligible returns an existing certificate without re-evaluating, so
// catalog changes after issuance never affect it.
func (s *certificateService) IssueIfEligible(ctx context.Context, userID, courseID primitive.ObjectID) (*IssueResult, error) {
	if userID.IsZero() || courseID.IsZero() {
		return nil, invalidInput("userId and courseId are required")
	}

	existing, err := s.certRepo.GetByUserAndCourse(ctx, userID, courseID)
	if err == nil {
		return &IssueResult{CertificateID: existing.ID, Created: false, Certificate: existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageFailure("find certificate", err)
	}

	status, err := s.evaluator.Evaluate(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !status.Complete {
		return nil, ErrNotEligible
	}

	var completionDate time.Time
	if status.LatestCompletion != nil {
		completionDate = *status.LatestCompletion
	}
	return s.Issue(ctx, userID, courseID, completionDate)
}

// OnVideoCompleted is the live issuance trigger. Failures are logged only;
// the reconciliation sweep picks up anything missed here.
func (s *certificateService) OnVideoCompleted(ctx context.Context, userID, courseID primitive.ObjectID) {
	result, err := s.IssueIfEligible(ctx, userID, courseID)
	switch {
	case errors.Is(err, ErrNotEligible):
		return
	case err != nil:
		s.logger.Warn("Live certificate issuance failed; sweep will retry",
			zap.String("userId", userID.Hex()),
			zap.String("courseId", courseID.Hex()),
			zap.Error(err),
		)
	case result.Created:
		s.logger.Info("Course completed", zap.String("userId", userID.Hex()), zap.String("courseId", courseID.Hex()))
	}
}

func (s *certificateService) GetCertificate(ctx context.Context, id string) (*domain.Certificate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidInput("certificate id is required")
	}
	cert, err := s.certRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, storageFailure("get certificate", err)
	}
	return cert, nil
}

func (s *certificateService) ListUserCertificates(ctx context.Context, userID primitive.ObjectID) ([]domain.Certificate, error) {
	if userID.IsZero() {
		return nil, invalidInput("userId is required")
	}
	certs, err := s.certRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageFailure("list certificates", err)
	}
	return certs, nil
}

// SetCertificateActive revokes or restores a certificate. Snapshots are untouched.
func (s *certificateService) SetCertificateActive(ctx context.Context, id string, active bool) (*domain.Certificate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidInput("certificate id is required")
	}
	if err := s.certRepo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, storageFailure("set certificate active", err)
	}
	s.logger.Info("Certificate status changed", zap.String("certificateId", id), zap.Bool("active", active))
	return s.GetCertificate(ctx, id)
}

func (s *certificateService) DocumentURL(ctx context.Context, id string) (string, error) {
	cert, err := s.GetCertificate(ctx, id)
	if err != nil {
		return "", err
	}
	if !cert.IsActive {
		return "", ErrCertificateRevoked
	}
	if s.storage == nil {
		return "", dependencyUnavailable("document storage is not configured", nil)
	}

	body, err := renderCertificate(cert)
	if err != nil {
		return "", err
	}

	key := certificateObjectKey(cert.ID)
	if err := s.storage.PutObject(ctx, key, certificateContentType, body); err != nil {
		return "", dependencyUnavailable("store certificate document", err)
	}
	url, err := s.storage.GeneratePresignedDownloadURL(ctx, key, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return "", dependencyUnavailable("presign certificate document", err)
	}
	return url, nil
}
