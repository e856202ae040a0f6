package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

// --- viewing records ---

type recordKey struct{ user, video primitive.ObjectID }

type fakeRecordRepo struct {
	mu            sync.Mutex
	records       map[recordKey]domain.ViewingRecord
	upsertErr     error
	listCourseErr map[primitive.ObjectID]error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{
		records:       make(map[recordKey]domain.ViewingRecord),
		listCourseErr: make(map[primitive.ObjectID]error),
	}
}

func (r *fakeRecordRepo) Upsert(_ context.Context, w domain.ProgressWrite) (*domain.ViewingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	key := recordKey{w.UserID, w.VideoID}
	var current *domain.ViewingRecord
	if rec, ok := r.records[key]; ok {
		current = &rec
	}
	next := domain.MergeProgress(current, w)
	if next.ID.IsZero() {
		next.ID = primitive.NewObjectID()
	}
	r.records[key] = next
	return &next, nil
}

// put stores a record as-is, for seeding legacy or fixed-time data.
func (r *fakeRecordRepo) put(rec domain.ViewingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	r.records[recordKey{rec.UserID, rec.VideoID}] = rec
}

func (r *fakeRecordRepo) GetByUserAndVideo(_ context.Context, userID, videoID primitive.ObjectID) (*domain.ViewingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{userID, videoID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *fakeRecordRepo) filter(keep func(domain.ViewingRecord) bool) []domain.ViewingRecord {
	out := []domain.ViewingRecord{}
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (r *fakeRecordRepo) ListByUserAndCourse(_ context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(rec domain.ViewingRecord) bool {
		return rec.UserID == userID && rec.CourseID == courseID
	}), nil
}

func (r *fakeRecordRepo) ListCompletedByUserAndCourse(_ context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(rec domain.ViewingRecord) bool {
		return rec.UserID == userID && rec.CourseID == courseID && rec.IsCompleted()
	}), nil
}

func (r *fakeRecordRepo) ListByCourse(_ context.Context, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.listCourseErr[courseID]; err != nil {
		return nil, err
	}
	return r.filter(func(rec domain.ViewingRecord) bool { return rec.CourseID == courseID }), nil
}

// --- certificates ---

type pairKey struct{ user, course primitive.ObjectID }

type fakeCertRepo struct {
	mu        sync.Mutex
	byID      map[string]domain.Certificate
	byPair    map[pairKey]string
	createErr error
	creates   int
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{
		byID:   make(map[string]domain.Certificate),
		byPair: make(map[pairKey]string),
	}
}

func (r *fakeCertRepo) Create(_ context.Context, cert *domain.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.byID[cert.ID]; ok {
		return repository.ErrDuplicateKey
	}
	pair := pairKey{cert.UserID, cert.CourseID}
	if _, ok := r.byPair[pair]; ok {
		return repository.ErrDuplicateKey
	}
	r.byID[cert.ID] = *cert
	r.byPair[pair] = cert.ID
	return nil
}

func (r *fakeCertRepo) GetByID(_ context.Context, id string) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cert, nil
}

func (r *fakeCertRepo) GetByUserAndCourse(_ context.Context, userID, courseID primitive.ObjectID) (*domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPair[pairKey{userID, courseID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cert := r.byID[id]
	return &cert, nil
}

func (r *fakeCertRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Certificate{}
	for _, cert := range r.byID {
		if cert.UserID == userID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (r *fakeCertRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	cert.IsActive = active
	r.byID[id] = cert
	return nil
}

func (r *fakeCertRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// --- catalog ---

type fakeVideoRepo struct {
	mu        sync.Mutex
	videos    map[primitive.ObjectID]domain.Video
	courseErr map[primitive.ObjectID]error
	listErr   error
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{
		videos:    make(map[primitive.ObjectID]domain.Video),
		courseErr: make(map[primitive.ObjectID]error),
	}
}

func (r *fakeVideoRepo) add(courseID primitive.ObjectID, duration float64) domain.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := domain.Video{
		ID:       primitive.NewObjectID(),
		CourseID: courseID,
		Title:    "Lesson",
		Duration: duration,
		Status:   domain.VideoActive,
		Sequence: len(r.videos) + 1,
	}
	r.videos[v.ID] = v
	return v
}

func (r *fakeVideoRepo) setStatus(id primitive.ObjectID, status domain.VideoStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.videos[id]
	v.Status = status
	r.videos[id] = v
}

func (r *fakeVideoRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *fakeVideoRepo) ListActiveByCourse(_ context.Context, courseID primitive.ObjectID) ([]domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.courseErr[courseID]; err != nil {
		return nil, err
	}
	out := []domain.Video{}
	for _, v := range r.videos {
		if v.CourseID == courseID && v.IsActive() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *fakeVideoRepo) ListCourseIDsWithActiveVideos(_ context.Context) ([]primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	seen := map[primitive.ObjectID]bool{}
	out := []primitive.ObjectID{}
	for _, v := range r.videos {
		if v.IsActive() && !seen[v.CourseID] {
			seen[v.CourseID] = true
			out = append(out, v.CourseID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

type fakeCourseRepo struct {
	courses map[primitive.ObjectID]domain.Course
	err     error
}

func (r *fakeCourseRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Course, error) {
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type fakeUserRepo struct {
	users map[primitive.ObjectID]domain.User
	err   error
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// --- object storage ---

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (s *fakeStorage) PutObject(_ context.Context, key, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = body
	return nil
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key + "?signature=x", nil
}

// --- wiring ---

type testEnv struct {
	records  *fakeRecordRepo
	certs    *fakeCertRepo
	videos   *fakeVideoRepo
	courses  *fakeCourseRepo
	users    *fakeUserRepo
	storage  *fakeStorage
	clock    *fakeClock
	eval     *completionEvaluator
	certSvc  *certificateService
	progress *progressService
	sweep    *sweepService
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv() *testEnv {
	env := &testEnv{
		records: newFakeRecordRepo(),
		certs:   newFakeCertRepo(),
		videos:  newFakeVideoRepo(),
		courses: &fakeCourseRepo{courses: map[primitive.ObjectID]domain.Course{}},
		users:   &fakeUserRepo{users: map[primitive.ObjectID]domain.User{}},
		storage: &fakeStorage{},
		clock:   &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	logger := zap.NewNop()

	env.eval = NewCompletionEvaluator(env.videos, env.records).(*completionEvaluator)
	env.eval.now = env.clock.Now

	env.certSvc = NewCertificateService(env.certs, env.users, env.courses, env.eval, env.storage, logger).(*certificateService)
	env.certSvc.now = env.clock.Now

	env.progress = NewProgressService(env.records, env.videos, env.certSvc, logger).(*progressService)
	env.progress.now = env.clock.Now

	env.sweep = NewSweepService(env.videos, env.records, env.certSvc, 4, logger).(*sweepService)
	env.sweep.now = env.clock.Now
	return env
}

func (e *testEnv) addUser(name, email string) primitive.ObjectID {
	id := primitive.NewObjectID()
	e.users.users[id] = domain.User{ID: id, Name: name, Email: email, Role: domain.RoleLearner}
	return id
}

// addCourse creates a course with the given number of active 100-second videos.
func (e *testEnv) addCourse(title string, videos int) (primitive.ObjectID, []domain.Video) {
	id := primitive.NewObjectID()
	e.courses.courses[id] = domain.Course{ID: id, Title: title}
	out := make([]domain.Video, 0, videos)
	for i := 0; i < videos; i++ {
		out = append(out, e.videos.add(id, 100))
	}
	return id, out
}

func percent(p int) *int { return &p }

func (e *testEnv) watch(userID primitive.ObjectID, v domain.Video, pct int) (*domain.ViewingRecord, error) {
	return e.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:           userID,
		VideoID:          v.ID,
		CourseID:         v.CourseID,
		CurrentPosition:  float64(pct),
		TotalWatchedTime: float64(pct),
		ProgressPercent:  percent(pct),
	})
}
