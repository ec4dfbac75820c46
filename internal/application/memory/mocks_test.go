package memory

import (
	"context"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

type fakeProfiles struct {
	profile *models.UserProfile
	getErr  error
	updated *models.UserProfile
}

func (f *fakeProfiles) Get(ctx context.Context) (*models.UserProfile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.profile == nil {
		return models.DefaultUserProfile(), nil
	}
	return f.profile, nil
}

func (f *fakeProfiles) Update(ctx context.Context, profile *models.UserProfile) error {
	f.updated = profile
	return nil
}

func (f *fakeProfiles) EnsureDefault(ctx context.Context) error { return nil }

type fakeSessions struct {
	turns     map[string][]models.ConversationTurn
	turnsErr  error
	cleared   bool
	clearErr  error
	healthErr error
}

func (f *fakeSessions) AppendTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error {
	if f.turns == nil {
		f.turns = map[string][]models.ConversationTurn{}
	}
	f.turns[conversationID] = append(f.turns[conversationID], turn)
	return nil
}

func (f *fakeSessions) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	if f.turnsErr != nil {
		return nil, f.turnsErr
	}
	turns := f.turns[conversationID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *fakeSessions) ClearTurns(ctx context.Context, conversationID string) (int, error) {
	n := len(f.turns[conversationID])
	delete(f.turns, conversationID)
	return n, nil
}

func (f *fakeSessions) SaveContext(ctx context.Context, sc *models.SessionContext) error { return nil }

func (f *fakeSessions) GetContext(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeSessions) SetToolOutput(ctx context.Context, sessionID, toolName string, output any) error {
	return nil
}

func (f *fakeSessions) GetToolOutput(ctx context.Context, sessionID, toolName string) (any, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeSessions) ClearAll(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.turns = nil
	return nil
}

func (f *fakeSessions) Health(ctx context.Context) error { return f.healthErr }

type fakeSemantic struct {
	entries   map[string]*models.SemanticMemory
	hits      []*models.ScoredSemanticMemory
	searchErr error
	upsertErr error
	deleted   []string
	cleared   bool
	clearErr  error
	healthErr error
}

func (f *fakeSemantic) Upsert(ctx context.Context, entry *models.SemanticMemory) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.entries == nil {
		f.entries = map[string]*models.SemanticMemory{}
	}
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeSemantic) Search(ctx context.Context, opts ports.SemanticSearchOptions) ([]*models.ScoredSemanticMemory, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeSemantic) Get(ctx context.Context, id string) (*models.SemanticMemory, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, domain.ErrMemoryNotFound
	}
	return entry, nil
}

func (f *fakeSemantic) Update(ctx context.Context, id string, update ports.SemanticUpdate) error {
	entry, ok := f.entries[id]
	if !ok {
		return domain.ErrMemoryNotFound
	}
	if update.Summary != nil {
		entry.Summary = *update.Summary
	}
	if update.Confidence != nil {
		entry.Confidence = *update.Confidence
	}
	return nil
}

func (f *fakeSemantic) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.entries, id)
	return nil
}

func (f *fakeSemantic) Scroll(ctx context.Context, offset, limit int) ([]*models.SemanticMemory, int, error) {
	return nil, 0, nil
}

func (f *fakeSemantic) ClearAll(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.entries = nil
	return nil
}

func (f *fakeSemantic) Health(ctx context.Context) error { return f.healthErr }

type fakePrefs struct {
	prefs     map[string]*models.Preference
	upsertErr error
	deleted   []string
}

func (f *fakePrefs) Upsert(ctx context.Context, pref *models.Preference) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.prefs == nil {
		f.prefs = map[string]*models.Preference{}
	}
	f.prefs[pref.Key] = pref
	return nil
}

func (f *fakePrefs) Get(ctx context.Context, key string) (*models.Preference, error) {
	pref, ok := f.prefs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pref, nil
}

func (f *fakePrefs) List(ctx context.Context, limit int) ([]*models.Preference, error) {
	var out []*models.Preference
	for _, pref := range f.prefs {
		out = append(out, pref)
	}
	return out, nil
}

func (f *fakePrefs) Delete(ctx context.Context, key string) error {
	if _, ok := f.prefs[key]; !ok {
		return domain.ErrNotFound
	}
	f.deleted = append(f.deleted, key)
	delete(f.prefs, key)
	return nil
}

type fakeEpisodic struct {
	entries   []*models.EpisodicEntry
	appendErr error
	recentErr error
}

func (f *fakeEpisodic) Append(ctx context.Context, entry *models.EpisodicEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeEpisodic) GetByID(ctx context.Context, id string) (*models.EpisodicEntry, error) {
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, domain.ErrMemoryNotFound
}

func (f *fakeEpisodic) Recent(ctx context.Context, limit int) ([]*models.EpisodicEntry, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeMetadata struct {
	rows     map[string]*models.MemoryMetadata
	trackErr error
}

func (f *fakeMetadata) Track(ctx context.Context, meta *models.MemoryMetadata) error {
	if f.trackErr != nil {
		return f.trackErr
	}
	if f.rows == nil {
		f.rows = map[string]*models.MemoryMetadata{}
	}
	copied := *meta
	if len(copied.Summary) > models.MaxMetadataSummaryLen {
		copied.Summary = models.Truncate(copied.Summary, models.MaxMetadataSummaryLen)
	}
	f.rows[meta.ID] = &copied
	return nil
}

func (f *fakeMetadata) Get(ctx context.Context, id string) (*models.MemoryMetadata, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrMemoryNotFound
	}
	return row, nil
}

func (f *fakeMetadata) List(ctx context.Context, opts ports.MemoryListOptions) ([]*models.MemoryMetadata, int, error) {
	var out []*models.MemoryMetadata
	for _, row := range f.rows {
		if row.Deleted && !opts.IncludeDeleted {
			continue
		}
		out = append(out, row)
	}
	return out, len(out), nil
}

func (f *fakeMetadata) Update(ctx context.Context, meta *models.MemoryMetadata) error {
	if _, ok := f.rows[meta.ID]; !ok {
		return domain.ErrMemoryNotFound
	}
	f.rows[meta.ID] = meta
	return nil
}

func (f *fakeMetadata) MarkDeleted(ctx context.Context, id string) error {
	row, ok := f.rows[id]
	if !ok {
		return domain.ErrMemoryNotFound
	}
	row.Deleted = true
	return nil
}

func (f *fakeMetadata) Delete(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

type fakeAdmin struct {
	cleared          bool
	preservedProfile bool
	clearErr         error
	healthErr        error
}

func (f *fakeAdmin) ClearAll(ctx context.Context, preserveProfile bool) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.preservedProfile = preserveProfile
	return nil
}

func (f *fakeAdmin) Health(ctx context.Context) error { return f.healthErr }

type fakeToolResetter struct {
	calls    int
	resetErr error
}

func (f *fakeToolResetter) ResetTools(ctx context.Context) error {
	f.calls++
	return f.resetErr
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeTxm struct{}

func (fakeTxm) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
