package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/metrics"
)

const memStoreName = "memory"

// MemStore keeps everything in maps behind one lock. Transactions take the
// write lock for their whole duration and stage writes until commit, so
// conditional updates are serialised.
type MemStore struct {
	mu            sync.RWMutex
	teams         map[string]model.Team
	matches       map[string]model.Match
	disputes      map[string]model.Dispute // by match id
	notifications map[string]model.Notification
	closed        bool

	now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		teams:         make(map[string]model.Team),
		matches:       make(map[string]model.Match),
		disputes:      make(map[string]model.Dispute),
		notifications: make(map[string]model.Notification),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close marks the store closed. Later calls fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// InTx runs fn against a staged view of the store.
func (s *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:         s,
		teams:         make(map[string]model.Team),
		matches:       make(map[string]model.Match),
		disputes:      make(map[string]model.Dispute),
		notifications: make(map[string]model.Notification),
	}
	if err := fn(ctx, tx); err != nil {
		metrics.RecordRepositoryTx(memStoreName, "rollback", time.Since(start).Seconds())
		return err
	}

	for id, t := range tx.teams {
		s.teams[id] = t
	}
	for id, m := range tx.matches {
		s.matches[id] = m
	}
	for id, d := range tx.disputes {
		s.disputes[id] = d
	}
	for id, n := range tx.notifications {
		s.notifications[id] = n
	}
	metrics.RecordRepositoryTx(memStoreName, "commit", time.Since(start).Seconds())
	return nil
}

func (s *MemStore) read(ctx context.Context, op string, fn func(v view) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(memStoreName, op, time.Since(start).Seconds())
	}()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(view{base: s})
}

func (s *MemStore) GetTeam(ctx context.Context, id string) (t model.Team, err error) {
	err = s.read(ctx, "get_team", func(v view) error {
		t, err = v.GetTeam(ctx, id)
		return err
	})
	return t, err
}

func (s *MemStore) GetMatch(ctx context.Context, id string) (m model.Match, err error) {
	err = s.read(ctx, "get_match", func(v view) error {
		m, err = v.GetMatch(ctx, id)
		return err
	})
	return m, err
}

func (s *MemStore) ListTeams(ctx context.Context, f TeamFilter) (out []model.Team, err error) {
	err = s.read(ctx, "list_teams", func(v view) error {
		out, err = v.ListTeams(ctx, f)
		return err
	})
	return out, err
}

func (s *MemStore) ListMatches(ctx context.Context, f MatchFilter) (out []model.Match, err error) {
	err = s.read(ctx, "list_matches", func(v view) error {
		out, err = v.ListMatches(ctx, f)
		return err
	})
	return out, err
}

func (s *MemStore) GetDisputeByMatch(ctx context.Context, matchID string) (d model.Dispute, err error) {
	err = s.read(ctx, "get_dispute", func(v view) error {
		d, err = v.GetDisputeByMatch(ctx, matchID)
		return err
	})
	return d, err
}

func (s *MemStore) DisputedTeamIDs(ctx context.Context) (out map[string]struct{}, err error) {
	err = s.read(ctx, "disputed_teams", func(v view) error {
		out, err = v.DisputedTeamIDs(ctx)
		return err
	})
	return out, err
}

func (s *MemStore) RecentOpponents(ctx context.Context, teamID string, n int) (out []string, err error) {
	err = s.read(ctx, "recent_opponents", func(v view) error {
		out, err = v.RecentOpponents(ctx, teamID, n)
		return err
	})
	return out, err
}

func (s *MemStore) PendingNotifications(ctx context.Context, createdBefore time.Time, limit int) ([]model.Notification, error) {
	return s.pending(ctx, "pending_notifications", limit, func(n *model.Notification) bool {
		return !n.CreatedAt.After(createdBefore)
	})
}

func (s *MemStore) PendingNotificationsFor(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	return s.pending(ctx, "pending_notifications_for", limit, func(n *model.Notification) bool {
		return n.UserID == userID
	})
}

func (s *MemStore) pending(ctx context.Context, op string, limit int, keep func(*model.Notification) bool) ([]model.Notification, error) {
	var out []model.Notification
	err := s.read(ctx, op, func(_ view) error {
		for _, n := range s.notifications {
			if n.DeliveredAt == nil && keep(&n) {
				out = append(out, n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *MemStore) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if n.DeliveredAt == nil {
		n.DeliveredAt = &at
		s.notifications[id] = n
	}
	return nil
}

func (s *MemStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		TeamsByStatus:   make(map[model.TeamStatus]int),
		MatchesByStatus: make(map[model.MatchStatus]int),
	}
	err := s.read(ctx, "stats", func(_ view) error {
		for _, t := range s.teams {
			st.TeamsByStatus[t.Status]++
		}
		for _, m := range s.matches {
			st.MatchesByStatus[m.Status]++
		}
		for _, d := range s.disputes {
			if d.Status == model.DisputeOpen {
				st.OpenDisputes++
			}
		}
		for _, n := range s.notifications {
			if n.DeliveredAt == nil {
				st.PendingNotifications++
			}
		}
		return nil
	})
	return st, err
}

// view resolves reads through the staged writes of a transaction, if any,
// before falling back to committed state.
type view struct {
	base *MemStore
	tx   *memTx
}

func (v view) team(id string) (model.Team, bool) {
	if v.tx != nil {
		if t, ok := v.tx.teams[id]; ok {
			return t, true
		}
	}
	t, ok := v.base.teams[id]
	return t, ok
}

func (v view) match(id string) (model.Match, bool) {
	if v.tx != nil {
		if m, ok := v.tx.matches[id]; ok {
			return m, true
		}
	}
	m, ok := v.base.matches[id]
	return m, ok
}

func (v view) allTeams() []model.Team {
	out := make([]model.Team, 0, len(v.base.teams))
	for id := range v.base.teams {
		t, _ := v.team(id)
		out = append(out, t)
	}
	if v.tx != nil {
		for id, t := range v.tx.teams {
			if _, committed := v.base.teams[id]; !committed {
				out = append(out, t)
			}
		}
	}
	return out
}

func (v view) allMatches() []model.Match {
	out := make([]model.Match, 0, len(v.base.matches))
	for id := range v.base.matches {
		m, _ := v.match(id)
		out = append(out, m)
	}
	if v.tx != nil {
		for id, m := range v.tx.matches {
			if _, committed := v.base.matches[id]; !committed {
				out = append(out, m)
			}
		}
	}
	return out
}

func (v view) dispute(matchID string) (model.Dispute, bool) {
	if v.tx != nil {
		if d, ok := v.tx.disputes[matchID]; ok {
			return d, true
		}
	}
	d, ok := v.base.disputes[matchID]
	return d, ok
}

func (v view) allDisputes() []model.Dispute {
	out := make([]model.Dispute, 0, len(v.base.disputes))
	for _, d := range v.base.disputes {
		out = append(out, d)
	}
	if v.tx != nil {
		for id, d := range v.tx.disputes {
			if _, committed := v.base.disputes[id]; !committed {
				out = append(out, d)
			}
		}
	}
	return out
}

func (v view) GetTeam(_ context.Context, id string) (model.Team, error) {
	t, ok := v.team(id)
	if !ok {
		return model.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (v view) GetMatch(_ context.Context, id string) (model.Match, error) {
	m, ok := v.match(id)
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (v view) ListTeams(_ context.Context, f TeamFilter) ([]model.Team, error) {
	var out []model.Team
	for _, t := range v.allTeams() {
		if teamMatches(&t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v view) ListMatches(_ context.Context, f MatchFilter) ([]model.Match, error) {
	var out []model.Match
	for _, m := range v.allMatches() {
		if matchMatches(&m, f) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v view) GetDisputeByMatch(_ context.Context, matchID string) (model.Dispute, error) {
	d, ok := v.dispute(matchID)
	if !ok {
		return model.Dispute{}, fmt.Errorf("dispute for match %s: %w", matchID, ErrNotFound)
	}
	return d, nil
}

func (v view) DisputedTeamIDs(_ context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, d := range v.allDisputes() {
		if d.Status == model.DisputeOpen {
			out[d.TeamAID] = struct{}{}
			out[d.TeamBID] = struct{}{}
		}
	}
	return out, nil
}

func (v view) RecentOpponents(_ context.Context, teamID string, n int) ([]string, error) {
	var done []model.Match
	for _, m := range v.allMatches() {
		if m.Status == model.MatchCompleted && m.Involves(teamID) {
			done = append(done, m)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return completedAt(&done[i]).After(completedAt(&done[j]))
	})
	if n > 0 && len(done) > n {
		done = done[:n]
	}
	out := make([]string, 0, len(done))
	for i := range done {
		out = append(out, done[i].Opponent(teamID))
	}
	return out, nil
}

func completedAt(m *model.Match) time.Time {
	if m.CompletedAt != nil {
		return *m.CompletedAt
	}
	return m.UpdatedAt
}

func teamMatches(t *model.Team, f TeamFilter) bool {
	if f.ClubID != "" && t.ClubID != f.ClubID {
		return false
	}
	if len(f.Statuses) > 0 && !model.StatusIn(t.Status, f.Statuses) {
		return false
	}
	if f.Queued != nil && t.Queued != *f.Queued {
		return false
	}
	if f.CooldownBefore != nil && (t.CooldownExpiresAt == nil || t.CooldownExpiresAt.After(*f.CooldownBefore)) {
		return false
	}
	if f.UnavailableBefore != nil && (t.UnavailableUntil == nil || t.UnavailableUntil.After(*f.UnavailableBefore)) {
		return false
	}
	if f.ActiveBefore != nil && t.LastActivity().After(*f.ActiveBefore) {
		return false
	}
	return true
}

func matchMatches(m *model.Match, f MatchFilter) bool {
	if f.ClubID != "" && m.ClubID != f.ClubID {
		return false
	}
	if f.TeamID != "" && !m.Involves(f.TeamID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if m.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DeadlineBefore != nil && (m.ConfirmationDeadline == nil || m.ConfirmationDeadline.After(*f.DeadlineBefore)) {
		return false
	}
	return true
}

// memTx stages writes on top of the committed maps.
type memTx struct {
	store         *MemStore
	teams         map[string]model.Team
	matches       map[string]model.Match
	disputes      map[string]model.Dispute
	notifications map[string]model.Notification
}

func (tx *memTx) view() view { return view{base: tx.store, tx: tx} }

func (tx *memTx) GetTeam(ctx context.Context, id string) (model.Team, error) {
	return tx.view().GetTeam(ctx, id)
}

func (tx *memTx) GetMatch(ctx context.Context, id string) (model.Match, error) {
	return tx.view().GetMatch(ctx, id)
}

func (tx *memTx) ListTeams(ctx context.Context, f TeamFilter) ([]model.Team, error) {
	return tx.view().ListTeams(ctx, f)
}

func (tx *memTx) ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error) {
	return tx.view().ListMatches(ctx, f)
}

func (tx *memTx) GetDisputeByMatch(ctx context.Context, matchID string) (model.Dispute, error) {
	return tx.view().GetDisputeByMatch(ctx, matchID)
}

func (tx *memTx) DisputedTeamIDs(ctx context.Context) (map[string]struct{}, error) {
	return tx.view().DisputedTeamIDs(ctx)
}

func (tx *memTx) RecentOpponents(ctx context.Context, teamID string, n int) ([]string, error) {
	return tx.view().RecentOpponents(ctx, teamID, n)
}

func (tx *memTx) CreateTeam(_ context.Context, t *model.Team) error {
	v := tx.view()
	if _, exists := v.team(t.ID); exists {
		return fmt.Errorf("team %s exists: %w", t.ID, ErrConflict)
	}
	for _, other := range v.allTeams() {
		if other.ClubID == t.ClubID && other.Name == t.Name {
			return fmt.Errorf("team name %q taken in club %s: %w", t.Name, t.ClubID, ErrConflict)
		}
	}
	now := tx.store.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	tx.teams[t.ID] = *t
	return nil
}

func (tx *memTx) CreateMatch(_ context.Context, m *model.Match) error {
	if _, exists := tx.view().match(m.ID); exists {
		return fmt.Errorf("match %s exists: %w", m.ID, ErrConflict)
	}
	now := tx.store.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	tx.matches[m.ID] = *m
	return nil
}

func (tx *memTx) CreateDispute(_ context.Context, d *model.Dispute) error {
	if _, exists := tx.view().dispute(d.MatchID); exists {
		return fmt.Errorf("dispute for match %s exists: %w", d.MatchID, ErrConflict)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = tx.store.now()
	}
	tx.disputes[d.MatchID] = *d
	return nil
}

func (tx *memTx) AddNotification(_ context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = tx.store.now()
	}
	tx.notifications[n.ID] = *n
	return nil
}

func (tx *memTx) UpdateTeamIf(_ context.Context, id string, from []model.TeamStatus, mutate func(*model.Team) error) (model.Team, error) {
	t, ok := tx.view().team(id)
	if !ok {
		return model.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if len(from) > 0 && !model.StatusIn(t.Status, from) {
		return model.Team{}, fmt.Errorf("team %s is %s: %w", id, t.Status, ErrConflict)
	}
	if err := mutate(&t); err != nil {
		return model.Team{}, err
	}
	t.UpdatedAt = tx.store.now()
	tx.teams[id] = t
	return t, nil
}

func (tx *memTx) UpdateMatchIf(_ context.Context, id string, from []model.MatchStatus, mutate func(*model.Match) error) (model.Match, error) {
	m, ok := tx.view().match(id)
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if len(from) > 0 && !matchMatches(&m, MatchFilter{Statuses: from}) {
		return model.Match{}, fmt.Errorf("match %s is %s: %w", id, m.Status, ErrConflict)
	}
	if err := mutate(&m); err != nil {
		return model.Match{}, err
	}
	m.UpdatedAt = tx.store.now()
	tx.matches[id] = m
	return m, nil
}
