package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"aichat/internal/config"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/services"
	"aichat/internal/service/usage"
)

// In-memory collaborators for exercising the pipeline without a database
// or network.

type fakeConversations struct {
	mu      sync.Mutex
	rows    map[string]*models.Conversation
	touched []string
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{rows: make(map[string]*models.Conversation)}
}

func (f *fakeConversations) Create(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = uuid.New().String()
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = conv.CreatedAt
	c := *conv
	f.rows[conv.ID] = &c
	return nil
}

func (f *fakeConversations) Get(ctx context.Context, id, userID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeConversations) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.rows {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversations) UpdateTitle(ctx context.Context, id, userID, title string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	c.Title = title
	out := *c
	return &out, nil
}

func (f *fakeConversations) Touch(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	if c, ok := f.rows[id]; ok {
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeConversations) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakeMessages struct {
	mu   sync.Mutex
	rows []*models.Message
}

func (f *fakeMessages) Create(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now()
	m := *msg
	f.rows = append(f.rows, &m)
	return nil
}

func (f *fakeMessages) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.rows {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) Finalize(ctx context.Context, id string, content, status string, errText *string, u *models.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows {
		if m.ID != id {
			continue
		}
		if m.Status != models.StatusStreaming {
			return fmt.Errorf("message %s already terminal: %w", id, domain.ErrNotFound)
		}
		m.Content = content
		m.Status = status
		m.Error = errText
		if u != nil {
			m.PromptTokens = &u.PromptTokens
			m.CompletionTokens = &u.CompletionTokens
			m.TotalTokens = &u.TotalTokens
			m.Cost = &u.Cost
			m.Estimated = &u.Estimated
		}
		return nil
	}
	return domain.ErrNotFound
}

func (f *fakeMessages) DeleteByConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, m := range f.rows {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	f.rows = kept
	return nil
}

// byID returns a copy of the stored message, or nil.
func (f *fakeMessages) byID(id string) *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows {
		if m.ID == id {
			out := *m
			return &out
		}
	}
	return nil
}

type fakeFiles struct {
	mu   sync.Mutex
	rows map[string]*models.UploadedFile
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{rows: make(map[string]*models.UploadedFile)}
}

func (f *fakeFiles) Create(ctx context.Context, file *models.UploadedFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	file.CreatedAt = time.Now()
	c := *file
	f.rows[file.ID] = &c
	return nil
}

func (f *fakeFiles) Get(ctx context.Context, id, userID string) (*models.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UserID != userID {
		return nil, domain.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeFiles) ListByIDs(ctx context.Context, ids []string, userID string) ([]models.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UploadedFile
	for _, id := range ids {
		if r, ok := f.rows[id]; ok && r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type cursorKey struct{ conv, file string }

type fakeCursors struct {
	mu   sync.Mutex
	rows map[cursorKey]*models.FileReadCursor
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{rows: make(map[cursorKey]*models.FileReadCursor)}
}

func (f *fakeCursors) Get(ctx context.Context, conversationID, fileID string) (*models.FileReadCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[cursorKey{conversationID, fileID}]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (f *fakeCursors) Latest(ctx context.Context, conversationID, userID string) (*models.FileReadCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.FileReadCursor
	for _, c := range f.rows {
		if c.ConversationID != conversationID || c.UserID != userID {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (f *fakeCursors) Upsert(ctx context.Context, cursor *models.FileReadCursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *cursor
	c.UpdatedAt = time.Now()
	f.rows[cursorKey{cursor.ConversationID, cursor.FileID}] = &c
	return nil
}

func (f *fakeCursors) DeleteByConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.rows {
		if k.conv == conversationID {
			delete(f.rows, k)
		}
	}
	return nil
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (f *fakeBlobs) Save(originalName string, content io.Reader) (string, int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", 0, err
	}
	name := uuid.New().String() + "-" + originalName
	f.mu.Lock()
	f.blobs[name] = data
	f.mu.Unlock()
	return name, int64(len(data)), nil
}

func (f *fakeBlobs) Open(storedName string) (io.ReadCloser, error) {
	data, err := f.Read(storedName)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) Read(storedName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[storedName]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", storedName)
	}
	return data, nil
}

// fakeProvider scripts a provider. StreamFn receives the upstream context
// so tests can block until cancellation.
type fakeProvider struct {
	name       string
	completeFn func(ctx context.Context, req *services.GenerateRequest) (*services.GenerateResponse, error)
	streamFn   func(ctx context.Context, req *services.GenerateRequest) (<-chan models.StreamEvent, error)

	mu      sync.Mutex
	lastReq *services.GenerateRequest
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) SupportsModel(model string) bool { return true }

func (p *fakeProvider) Complete(ctx context.Context, req *services.GenerateRequest) (*services.GenerateResponse, error) {
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()
	return p.completeFn(ctx, req)
}

func (p *fakeProvider) Stream(ctx context.Context, req *services.GenerateRequest) (<-chan models.StreamEvent, error) {
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()
	return p.streamFn(ctx, req)
}

func (p *fakeProvider) sentMessages() []models.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastReq == nil {
		return nil
	}
	return p.lastReq.Messages
}

// recordedEvent captures one sink call.
type recordedEvent struct {
	kind    string // "meta", "delta", "error", "done"
	text    string
	code    string
	message string
	convID  string
	msgID   string
}

type recordSink struct {
	mu      sync.Mutex
	started bool
	events  []recordedEvent
}

func (s *recordSink) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

func (s *recordSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *recordSink) Meta(conversationID, assistantMessageID string) {
	s.record(recordedEvent{kind: "meta", convID: conversationID, msgID: assistantMessageID})
}

func (s *recordSink) Delta(text string) {
	s.record(recordedEvent{kind: "delta", text: text})
}

func (s *recordSink) Error(code, message string) {
	s.record(recordedEvent{kind: "error", code: code, message: message})
}

func (s *recordSink) Done() {
	s.record(recordedEvent{kind: "done"})
}

func (s *recordSink) record(ev recordedEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) recorded() []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// testEnv wires a Service over the fakes.
type testEnv struct {
	svc           *Service
	conversations *fakeConversations
	messages      *fakeMessages
	files         *fakeFiles
	cursors       *fakeCursors
	blobs         *fakeBlobs
	provider      *fakeProvider
	cfg           *config.Config
	user          *models.User
}

func newTestEnv(provider *fakeProvider) *testEnv {
	cfg := &config.Config{
		MaxImageBytes:      8 << 20,
		MaxTextAttachments: 5,
		MaxAttachmentChars: 220_000,
		MaxCharsPerFile:    80_000,
		DefaultModel:       "openai/gpt-4o-mini",
		ChatIdleTimeout:    5 * time.Minute,
	}

	prices, err := usage.NewPriceTable(nil, time.Hour, nil)
	if err != nil {
		panic(err)
	}

	env := &testEnv{
		conversations: newFakeConversations(),
		messages:      &fakeMessages{},
		files:         newFakeFiles(),
		cursors:       newFakeCursors(),
		blobs:         newFakeBlobs(),
		provider:      provider,
		cfg:           cfg,
		user:          &models.User{ID: uuid.New().String(), Username: "alice"},
	}

	env.svc = NewService(Deps{
		Conversations: env.conversations,
		Messages:      env.messages,
		Files:         env.files,
		Cursors:       env.cursors,
		Blobs:         env.blobs,
		Providers:     []services.LLMProvider{provider},
		Prices:        prices,
		Config:        cfg,
		Logger:        slog.New(slog.DiscardHandler),
	})
	return env
}

// addTextFile stores a text file and its blob, returning the file id.
func (env *testEnv) addTextFile(name, content string) string {
	stored, size, err := env.blobs.Save(name, bytes.NewReader([]byte(content)))
	if err != nil {
		panic(err)
	}
	file := &models.UploadedFile{
		UserID:       env.user.ID,
		StoredName:   stored,
		OriginalName: name,
		Mime:         "text/plain",
		SizeBytes:    size,
	}
	if err := env.files.Create(context.Background(), file); err != nil {
		panic(err)
	}
	return file.ID
}

// addImageFile stores an image file record with a blob of the given size.
func (env *testEnv) addImageFile(name string, size int) string {
	stored, _, err := env.blobs.Save(name, bytes.NewReader(make([]byte, size)))
	if err != nil {
		panic(err)
	}
	file := &models.UploadedFile{
		UserID:       env.user.ID,
		StoredName:   stored,
		OriginalName: name,
		Mime:         "image/png",
		SizeBytes:    int64(size),
	}
	if err := env.files.Create(context.Background(), file); err != nil {
		panic(err)
	}
	return file.ID
}
