package domain

// TaskList is the body of list and reorder responses.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

type StatusChange struct {
	Status Status `json:"status"`
}

// ReorderRequest assigns order = index to IDs within Partition.
type ReorderRequest struct {
	Partition Partition `json:"partition"`
	IDs       []string  `json:"ids"`
}
