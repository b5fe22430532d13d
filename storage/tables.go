package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"collabnest/domain"
)

// personalPartition is the PartitionKey of tasks outside any organization.
const personalPartition = "personal"

// Tables implements Backend on Azure Table Storage. PartitionKey is the
// organization and RowKey the task id. Memberships live in a second table
// keyed by organization and user id.
type Tables struct {
	client  *aztables.Client
	members *aztables.Client
}

var (
	_ Backend = (*Tables)(nil)
	_ Members = (*Tables)(nil)
)

func NewTables(connStr, table, membersTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{client: svc.NewClient(table), members: svc.NewClient(membersTable)}, nil
}

type taskEntity struct {
	aztables.Entity
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Status       string `json:"Status"`
	Priority     string `json:"Priority"`
	Organization string `json:"Organization"`
	Order        int    `json:"Order"`
	DueDate      string `json:"DueDate,omitempty"`
	AssignedTo   string `json:"AssignedTo"`
	Labels       string `json:"Labels"`
	ClientRef    string `json:"ClientRef"`
	Owner        string `json:"Owner"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func partitionKey(organization string) string {
	if organization == "" {
		return personalPartition
	}
	return organization
}

func toEntity(t domain.Task) (taskEntity, error) {
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return taskEntity{}, err
	}
	ent := taskEntity{
		Entity:       aztables.Entity{PartitionKey: partitionKey(t.Organization), RowKey: t.ID},
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		Organization: t.Organization,
		Order:        t.Order,
		AssignedTo:   t.AssignedTo,
		Labels:       labels,
		ClientRef:    t.ClientRef,
		Owner:        t.Owner,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return ent, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:           ent.RowKey,
		Title:        ent.Title,
		Description:  ent.Description,
		Status:       domain.Status(ent.Status),
		Priority:     domain.Priority(ent.Priority),
		Organization: ent.Organization,
		Order:        ent.Order,
		AssignedTo:   ent.AssignedTo,
		ClientRef:    ent.ClientRef,
		Owner:        ent.Owner,
	}
	var err error
	if t.CreatedAt, err = parseTime(ent.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(ent.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if ent.DueDate != "" {
		d, err := parseTime(ent.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &d
	}
	if ent.Labels != "" && ent.Labels != "[]" {
		if err := sonic.UnmarshalString(ent.Labels, &t.Labels); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// quote escapes a value for an OData filter literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func (s *Tables) query(ctx context.Context, filter string, limit int) ([]domain.Task, error) {
	opts := &aztables.ListEntitiesOptions{Filter: &filter}
	if limit > 0 {
		top := int32(limit)
		opts.Top = &top
	}
	pager := s.client.NewListEntitiesPager(opts)
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
			if limit > 0 && len(tasks) >= limit {
				return tasks, nil
			}
		}
	}
	return tasks, nil
}

func (s *Tables) ListTasks(ctx context.Context, organization string) ([]domain.Task, error) {
	tasks, err := s.query(ctx, "PartitionKey eq "+quote(partitionKey(organization)), 0)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *Tables) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.first(ctx, "RowKey eq "+quote(id))
}

func (s *Tables) FindByClientRef(ctx context.Context, ref string) (domain.Task, error) {
	if ref == "" {
		return domain.Task{}, ErrNotFound
	}
	return s.first(ctx, "ClientRef eq "+quote(ref))
}

func (s *Tables) first(ctx context.Context, filter string) (domain.Task, error) {
	tasks, err := s.query(ctx, filter, 1)
	if err != nil {
		return domain.Task{}, err
	}
	if len(tasks) == 0 {
		return domain.Task{}, ErrNotFound
	}
	return tasks[0], nil
}

func (s *Tables) CreateTask(ctx context.Context, t domain.Task) error {
	ent, err := toEntity(t)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.client.AddEntity(ctx, data, nil)
	return err
}

// UpdateTask replaces the entity. A changed organization moves the entity to
// its new partition.
func (s *Tables) UpdateTask(ctx context.Context, t domain.Task) error {
	old, err := s.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	ent, err := toEntity(t)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	oldKey := partitionKey(old.Organization)
	if oldKey == ent.PartitionKey {
		_, err = s.client.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
		return err
	}
	if _, err := s.client.AddEntity(ctx, data, nil); err != nil {
		return err
	}
	if _, err := s.client.DeleteEntity(ctx, oldKey, t.ID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *Tables) ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error) {
	now := time.Now().UTC()
	tasks := make([]domain.Task, 0, len(ids))
	for i, id := range ids {
		t, err := s.GetTask(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !p.Contains(t) {
			continue
		}
		t.Order = i
		t.UpdatedAt = now
		patch, err := sonic.Marshal(map[string]any{
			"PartitionKey": partitionKey(t.Organization),
			"RowKey":       t.ID,
			"Order":        i,
			"UpdatedAt":    now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if _, err := s.client.UpdateEntity(ctx, patch, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
			return nil, fmt.Errorf("reorder %s: %w", id, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Tables) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.client.DeleteEntity(ctx, partitionKey(t.Organization), id, nil); err != nil {
		if isNotFound(err) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

type memberEntity struct {
	aztables.Entity
	Role string `json:"Role"`
}

func (s *Tables) Role(ctx context.Context, organization, userID string) (string, error) {
	resp, err := s.members.GetEntity(ctx, organization, userID, nil)
	if isNotFound(err) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", err
	}
	var ent memberEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return "", err
	}
	return ent.Role, nil
}

func (s *Tables) CreateOrganization(ctx context.Context, organization, adminID string) error {
	filter := "PartitionKey eq " + quote(organization)
	top := int32(1)
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	if pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		if len(resp.Entities) > 0 {
			return ErrConflict
		}
	}
	data, err := sonic.Marshal(memberEntity{
		Entity: aztables.Entity{PartitionKey: organization, RowKey: adminID},
		Role:   domain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	_, err = s.members.AddEntity(ctx, data, nil)
	return err
}

func (s *Tables) AddMember(ctx context.Context, organization, userID, role string) error {
	data, err := sonic.Marshal(memberEntity{
		Entity: aztables.Entity{PartitionKey: organization, RowKey: userID},
		Role:   role,
	})
	if err != nil {
		return err
	}
	_, err = s.members.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *Tables) Organizations(ctx context.Context, userID string) ([]domain.Membership, error) {
	filter := "RowKey eq " + quote(userID)
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Membership{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent memberEntity
			if err := sonic.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.Membership{Organization: ent.PartitionKey, UserID: ent.RowKey, Role: ent.Role})
		}
	}
	return out, nil
}
