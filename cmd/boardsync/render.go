package main

import (
	"fmt"
	"io"
	"sort"

	"collabnest/domain"
)

// renderBoard prints one block per column, tasks in order.
func renderBoard(w io.Writer, organization string, tasks []domain.Task) {
	title := organization
	if title == "" {
		title = "personal"
	}
	fmt.Fprintf(w, "== %s (%d tasks) ==\n", title, len(tasks))

	byStatus := make(map[domain.Status][]domain.Task)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	for _, st := range domain.Statuses {
		col := byStatus[st]
		sort.SliceStable(col, func(i, j int) bool { return col[i].Order < col[j].Order })
		fmt.Fprintf(w, "[%s]\n", st)
		for _, t := range col {
			line := fmt.Sprintf("  %s  %s", t.ID, t.Title)
			if t.Priority != "" {
				line += " (" + string(t.Priority) + ")"
			}
			if t.AssignedTo != "" {
				line += " @" + t.AssignedTo
			}
			fmt.Fprintln(w, line)
		}
	}
}
