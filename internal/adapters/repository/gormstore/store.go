// Package gormstore implements repository.Store on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/metrics"
)

const storeName = "postgres"

// Option configures Open.
type Option func(*options)

type options struct {
	logLevel    gormlogger.LogLevel
	maxOpen     int
	maxIdle     int
	autoMigrate bool
	now         func() time.Time
}

// WithLogLevel sets gorm's SQL log level. Silent by default.
func WithLogLevel(level gormlogger.LogLevel) Option {
	return func(o *options) { o.logLevel = level }
}

// WithPool sizes the connection pool.
func WithPool(maxOpen, maxIdle int) Option {
	return func(o *options) {
		if maxOpen > 0 {
			o.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			o.maxIdle = maxIdle
		}
	}
}

// WithAutoMigrate runs AutoMigrate during Open.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.autoMigrate = enabled }
}

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Store is a repository.Store backed by gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open connects to PostgreSQL using dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := options{logLevel: gormlogger.Silent, maxOpen: 20, maxIdle: 5, autoMigrate: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(o.logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return o.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(o.maxOpen)
	sqlDB.SetMaxIdleConns(o.maxIdle)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: o.now}
	if o.autoMigrate {
		if err := s.AutoMigrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// AutoMigrate creates or updates the schema.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allRecords()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Truncate empties every table. Tests use it to isolate scenarios.
func (s *Store) Truncate(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("TRUNCATE TABLE teams, matches, disputes, notifications").Error
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InTx runs fn inside a database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &txn{reader: reader{db: db}, now: s.now})
	})
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
		if lostRace(err) && !errors.Is(err, repository.ErrConflict) {
			err = fmt.Errorf("commit: %w", repository.ErrConflict)
		}
	}
	metrics.RecordRepositoryTx(storeName, outcome, time.Since(start).Seconds())
	return err
}

func (s *Store) reader(ctx context.Context) reader {
	return reader{db: s.db.WithContext(ctx)}
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(storeName, op, time.Since(start).Seconds())
}

func (s *Store) GetTeam(ctx context.Context, id string) (model.Team, error) {
	defer observe("get_team", time.Now())
	return s.reader(ctx).GetTeam(ctx, id)
}

func (s *Store) GetMatch(ctx context.Context, id string) (model.Match, error) {
	defer observe("get_match", time.Now())
	return s.reader(ctx).GetMatch(ctx, id)
}

func (s *Store) ListTeams(ctx context.Context, f repository.TeamFilter) ([]model.Team, error) {
	defer observe("list_teams", time.Now())
	return s.reader(ctx).ListTeams(ctx, f)
}

func (s *Store) ListMatches(ctx context.Context, f repository.MatchFilter) ([]model.Match, error) {
	defer observe("list_matches", time.Now())
	return s.reader(ctx).ListMatches(ctx, f)
}

func (s *Store) GetDisputeByMatch(ctx context.Context, matchID string) (model.Dispute, error) {
	defer observe("get_dispute", time.Now())
	return s.reader(ctx).GetDisputeByMatch(ctx, matchID)
}

func (s *Store) DisputedTeamIDs(ctx context.Context) (map[string]struct{}, error) {
	defer observe("disputed_teams", time.Now())
	return s.reader(ctx).DisputedTeamIDs(ctx)
}

func (s *Store) RecentOpponents(ctx context.Context, teamID string, n int) ([]string, error) {
	defer observe("recent_opponents", time.Now())
	return s.reader(ctx).RecentOpponents(ctx, teamID, n)
}

func (s *Store) PendingNotifications(ctx context.Context, createdBefore time.Time, limit int) ([]model.Notification, error) {
	defer observe("pending_notifications", time.Now())
	return s.pending(s.db.WithContext(ctx).Where("delivered_at IS NULL AND created_at <= ?", createdBefore), limit)
}

func (s *Store) PendingNotificationsFor(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	defer observe("pending_notifications_for", time.Now())
	return s.pending(s.db.WithContext(ctx).Where("delivered_at IS NULL AND user_id = ?", userID), limit)
}

func (s *Store) pending(q *gorm.DB, limit int) ([]model.Notification, error) {
	q = q.Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []notificationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}

func (s *Store) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&notificationRecord{}).
		Where("id = ?", id).
		Update("delivered_at", gorm.Expr("COALESCE(delivered_at, ?)", at))
	if res.Error != nil {
		return fmt.Errorf("mark notification %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

type statusCount struct {
	Status string
	N      int
}

func (s *Store) Stats(ctx context.Context) (repository.Stats, error) {
	defer observe("stats", time.Now())
	st := repository.Stats{
		TeamsByStatus:   make(map[model.TeamStatus]int),
		MatchesByStatus: make(map[model.MatchStatus]int),
	}
	db := s.db.WithContext(ctx)

	var teams []statusCount
	if err := db.Model(&teamRecord{}).Select("status, count(*) AS n").Group("status").Scan(&teams).Error; err != nil {
		return st, fmt.Errorf("team stats: %w", err)
	}
	for _, c := range teams {
		st.TeamsByStatus[model.TeamStatus(c.Status)] = c.N
	}

	var matches []statusCount
	if err := db.Model(&matchRecord{}).Select("status, count(*) AS n").Group("status").Scan(&matches).Error; err != nil {
		return st, fmt.Errorf("match stats: %w", err)
	}
	for _, c := range matches {
		st.MatchesByStatus[model.MatchStatus(c.Status)] = c.N
	}

	var open, pending int64
	if err := db.Model(&disputeRecord{}).Where("status = ?", string(model.DisputeOpen)).Count(&open).Error; err != nil {
		return st, fmt.Errorf("dispute stats: %w", err)
	}
	if err := db.Model(&notificationRecord{}).Where("delivered_at IS NULL").Count(&pending).Error; err != nil {
		return st, fmt.Errorf("notification stats: %w", err)
	}
	st.OpenDisputes = int(open)
	st.PendingNotifications = int(pending)
	return st, nil
}

// reader implements repository.Reader on any gorm handle, pooled or transactional.
type reader struct {
	db *gorm.DB
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r reader) GetTeam(_ context.Context, id string) (model.Team, error) {
	var rec teamRecord
	if err := r.db.Where("id = ?", id).Take(&rec).Error; err != nil {
		return model.Team{}, notFound(err, "team "+id)
	}
	return rec.toModel(), nil
}

func (r reader) GetMatch(_ context.Context, id string) (model.Match, error) {
	var rec matchRecord
	if err := r.db.Where("id = ?", id).Take(&rec).Error; err != nil {
		return model.Match{}, notFound(err, "match "+id)
	}
	return rec.toModel(), nil
}

func teamStatuses(in []model.TeamStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func matchStatuses(in []model.MatchStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (r reader) ListTeams(_ context.Context, f repository.TeamFilter) ([]model.Team, error) {
	q := r.db.Model(&teamRecord{})
	if f.ClubID != "" {
		q = q.Where("club_id = ?", f.ClubID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", teamStatuses(f.Statuses))
	}
	if f.Queued != nil {
		q = q.Where("queued = ?", *f.Queued)
	}
	if f.CooldownBefore != nil {
		q = q.Where("cooldown_expires_at IS NOT NULL AND cooldown_expires_at <= ?", *f.CooldownBefore)
	}
	if f.UnavailableBefore != nil {
		q = q.Where("unavailable_until IS NOT NULL AND unavailable_until <= ?", *f.UnavailableBefore)
	}
	if f.ActiveBefore != nil {
		q = q.Where("COALESCE(last_match_completed_at, created_at) <= ?", *f.ActiveBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []teamRecord
	if err := q.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	out := make([]model.Team, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}

func (r reader) ListMatches(_ context.Context, f repository.MatchFilter) ([]model.Match, error) {
	q := r.db.Model(&matchRecord{})
	if f.ClubID != "" {
		q = q.Where("club_id = ?", f.ClubID)
	}
	if f.TeamID != "" {
		q = q.Where("team_a_id = ? OR team_b_id = ?", f.TeamID, f.TeamID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", matchStatuses(f.Statuses))
	}
	if f.DeadlineBefore != nil {
		q = q.Where("confirmation_deadline IS NOT NULL AND confirmation_deadline <= ?", *f.DeadlineBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []matchRecord
	if err := q.Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	out := make([]model.Match, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}

func (r reader) GetDisputeByMatch(_ context.Context, matchID string) (model.Dispute, error) {
	var rec disputeRecord
	if err := r.db.Where("match_id = ?", matchID).Take(&rec).Error; err != nil {
		return model.Dispute{}, notFound(err, "dispute for match "+matchID)
	}
	return rec.toModel(), nil
}

func (r reader) DisputedTeamIDs(_ context.Context) (map[string]struct{}, error) {
	var recs []disputeRecord
	if err := r.db.Select("team_a_id", "team_b_id").
		Where("status = ?", string(model.DisputeOpen)).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("disputed teams: %w", err)
	}
	out := make(map[string]struct{}, len(recs)*2)
	for _, d := range recs {
		out[d.TeamAID] = struct{}{}
		out[d.TeamBID] = struct{}{}
	}
	return out, nil
}

func (r reader) RecentOpponents(_ context.Context, teamID string, n int) ([]string, error) {
	q := r.db.Select("team_a_id", "team_b_id").
		Where("status = ? AND (team_a_id = ? OR team_b_id = ?)", string(model.MatchCompleted), teamID, teamID).
		Order("COALESCE(completed_at, updated_at) DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	var recs []matchRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("recent opponents: %w", err)
	}
	out := make([]string, 0, len(recs))
	for _, m := range recs {
		if m.TeamAID == teamID {
			out = append(out, m.TeamBID)
		} else {
			out = append(out, m.TeamAID)
		}
	}
	return out, nil
}

// txn is the transactional side. Conditional updates lock the row with
// SELECT ... FOR UPDATE filtered by status, so a concurrent claim waits and
// then sees the new status.
type txn struct {
	reader
	now func() time.Time
}

func conflictOr(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || lostRace(err) {
		return fmt.Errorf("%s: %w", what, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Postgres aborts one side of a lock cycle or a serialization conflict.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// lostRace reports whether err is Postgres aborting this transaction in
// favour of a concurrent one.
func lostRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateDeadlockDetected || pgErr.Code == sqlStateSerializationFailure
}

func (t *txn) CreateTeam(_ context.Context, team *model.Team) error {
	now := t.now()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	team.UpdatedAt = now
	rec := toTeamRecord(team)
	if err := t.db.Create(&rec).Error; err != nil {
		return conflictOr(err, "create team "+team.ID)
	}
	return nil
}

func (t *txn) CreateMatch(_ context.Context, m *model.Match) error {
	now := t.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	rec := toMatchRecord(m)
	if err := t.db.Create(&rec).Error; err != nil {
		return conflictOr(err, "create match "+m.ID)
	}
	return nil
}

func (t *txn) CreateDispute(_ context.Context, d *model.Dispute) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = t.now()
	}
	rec := toDisputeRecord(d)
	if err := t.db.Create(&rec).Error; err != nil {
		return conflictOr(err, "create dispute for match "+d.MatchID)
	}
	return nil
}

func (t *txn) AddNotification(_ context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now()
	}
	rec := toNotificationRecord(n)
	if err := t.db.Create(&rec).Error; err != nil {
		return conflictOr(err, "add notification "+n.ID)
	}
	return nil
}

// lockRow loads the row for update, restricted to the given statuses.
// A missing row is told apart from a row in another state.
func (t *txn) lockRow(dest any, table, id string, statuses []string) error {
	q := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Take(dest).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return conflictOr(err, "lock "+table+" "+id)
	}
	var n int64
	if cerr := t.db.Table(table).Where("id = ?", id).Count(&n).Error; cerr != nil {
		return fmt.Errorf("lock %s %s: %w", table, id, cerr)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, repository.ErrNotFound)
	}
	return fmt.Errorf("%s %s changed state: %w", table, id, repository.ErrConflict)
}

func (t *txn) UpdateTeamIf(_ context.Context, id string, from []model.TeamStatus, mutate func(*model.Team) error) (model.Team, error) {
	var rec teamRecord
	if err := t.lockRow(&rec, "teams", id, teamStatuses(from)); err != nil {
		return model.Team{}, err
	}
	team := rec.toModel()
	if err := mutate(&team); err != nil {
		return model.Team{}, err
	}
	team.UpdatedAt = t.now()
	next := toTeamRecord(&team)
	if err := t.db.Save(&next).Error; err != nil {
		return model.Team{}, conflictOr(err, "update team "+id)
	}
	return team, nil
}

func (t *txn) UpdateMatchIf(_ context.Context, id string, from []model.MatchStatus, mutate func(*model.Match) error) (model.Match, error) {
	var rec matchRecord
	if err := t.lockRow(&rec, "matches", id, matchStatuses(from)); err != nil {
		return model.Match{}, err
	}
	m := rec.toModel()
	if err := mutate(&m); err != nil {
		return model.Match{}, err
	}
	m.UpdatedAt = t.now()
	next := toMatchRecord(&m)
	if err := t.db.Save(&next).Error; err != nil {
		return model.Match{}, conflictOr(err, "update match "+id)
	}
	return m, nil
}
