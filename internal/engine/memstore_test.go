package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

// memStore is an in-memory store.Store used by engine tests.
type memStore struct {
	mu          sync.Mutex
	definitions map[string]*store.AgentDefinition
	runs        map[string]*store.AgentRun
	tasks       map[string]*store.AgentTask
	sources     []*store.MatterSource
	events      []*store.MatterEvent
	team        map[string][]string
	notes       []*store.Notification
	templates   map[string]*store.DocumentTemplate
}

func newMemStore() *memStore {
	return &memStore{
		definitions: map[string]*store.AgentDefinition{},
		runs:        map[string]*store.AgentRun{},
		tasks:       map[string]*store.AgentTask{},
		team:        map[string][]string{},
		templates:   map[string]*store.DocumentTemplate{},
	}
}

func notFound(resource, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func (m *memStore) CreateDefinition(ctx context.Context, def *store.AgentDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *def
	m.definitions[def.ID] = &cp
	return nil
}

func (m *memStore) GetDefinition(ctx context.Context, id string) (*store.AgentDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok {
		return nil, notFound("agent", id)
	}
	cp := *def
	return &cp, nil
}

func (m *memStore) GetDefinitionForOrg(ctx context.Context, orgID, id string) (*store.AgentDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok || def.OrgID != orgID {
		return nil, notFound("agent", id)
	}
	cp := *def
	return &cp, nil
}

func (m *memStore) ListDefinitions(ctx context.Context, filter store.DefinitionFilter) ([]*store.AgentDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.AgentDefinition
	for _, def := range m.definitions {
		if filter.OrgID != "" && def.OrgID != filter.OrgID {
			continue
		}
		if filter.Status != nil && def.Status != *filter.Status {
			continue
		}
		if filter.TriggerType != nil && def.TriggerType != *filter.TriggerType {
			continue
		}
		cp := *def
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateDefinitionSchedule(ctx context.Context, id string, update store.ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok {
		return notFound("agent", id)
	}
	if update.LastRunAt != nil {
		def.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		def.NextRunAt = update.NextRunAt
	}
	return nil
}

func (m *memStore) CreateRun(ctx context.Context, run *store.AgentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) GetRun(ctx context.Context, id string) (*store.AgentRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, notFound("run", id)
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) UpdateRun(ctx context.Context, id string, update store.RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return notFound("run", id)
	}
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.OutputData != nil {
		run.OutputData = update.OutputData
	}
	if update.Error != nil {
		run.Error = *update.Error
	}
	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *memStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.AgentRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.AgentRun
	for _, run := range m.runs {
		if filter.AgentID != "" && run.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) CreateTask(ctx context.Context, task *store.AgentTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memStore) GetTask(ctx context.Context, id string) (*store.AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	cp := *task
	return &cp, nil
}

func (m *memStore) UpdateTask(ctx context.Context, id string, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Output != nil {
		task.Output = update.Output
	}
	if update.Error != nil {
		task.Error = *update.Error
	}
	if update.StartedAt != nil {
		task.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *memStore) ListTasks(ctx context.Context, runID string) ([]*store.AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.AgentTask
	for _, task := range m.tasks {
		if task.RunID == runID {
			cp := *task
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) SkipPendingTasks(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.RunID == runID && !task.Status.IsTerminal() {
			task.Status = schema.TaskStatusSkipped
		}
	}
	return nil
}

func (m *memStore) CreateEvent(ctx context.Context, event *store.MatterEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]*store.MatterEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.MatterEvent
	for _, e := range m.events {
		if filter.MatterID != "" && e.MatterID != filter.MatterID {
			continue
		}
		if filter.DeadlineOnly && !e.IsDeadline {
			continue
		}
		if filter.Incomplete && e.IsCompleted {
			continue
		}
		if filter.DateOnBefore != "" && e.EventDate > filter.DateOnBefore {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListSources(ctx context.Context, matterID string, limit int) ([]*store.MatterSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.MatterSource
	for _, src := range m.sources {
		if src.MatterID != matterID {
			continue
		}
		cp := *src
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ListTeamUserIDs(ctx context.Context, matterID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.team[matterID]...), nil
}

func (m *memStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notes = append(m.notes, &cp)
	return nil
}

func (m *memStore) GetTemplate(ctx context.Context, id string) (*store.DocumentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, notFound("document_template", id)
	}
	cp := *tpl
	return &cp, nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Vacuum(ctx context.Context) error  { return nil }
func (m *memStore) Close() error                      { return nil }
