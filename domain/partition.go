package domain

import "fmt"

// PartitionKind selects the grouping key within which task order is meaningful.
type PartitionKind string

const (
	KindStatus       PartitionKind = "status"
	KindOrganization PartitionKind = "organization"
)

func (k PartitionKind) Valid() bool {
	return k == KindStatus || k == KindOrganization
}

// KeyOf returns the partition key t belongs to under this kind.
func (k PartitionKind) KeyOf(t Task) string {
	if k == KindOrganization {
		return t.Organization
	}
	return string(t.Status)
}

// Partition identifies one column (status) or one board (organization).
type Partition struct {
	Kind PartitionKind `json:"kind"`
	Key  string        `json:"key"`
}

func StatusPartition(s Status) Partition {
	return Partition{Kind: KindStatus, Key: string(s)}
}

func OrganizationPartition(org string) Partition {
	return Partition{Kind: KindOrganization, Key: org}
}

func (p Partition) Contains(t Task) bool {
	return p.Kind.KeyOf(t) == p.Key
}

func (p Partition) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown partition kind %q", ErrInvalidPartition, p.Kind)
	}
	if p.Kind == KindStatus && !Status(p.Key).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Key)
	}
	if p.Kind == KindOrganization && p.Key == "" {
		return fmt.Errorf("%w: empty organization", ErrInvalidPartition)
	}
	return nil
}

func (p Partition) String() string {
	return string(p.Kind) + ":" + p.Key
}
