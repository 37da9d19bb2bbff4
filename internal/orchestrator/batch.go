package orchestrator

import "crucible/internal/state"

// Batches splits units into round-robin batches holding at most one unit per
// model and at most size units. Units keep their relative order within a
// model, and each batch starts with the model after the one that ended the
// previous batch.
func Batches(units []state.Unit, size int) [][]state.Unit {
	if len(units) == 0 {
		return nil
	}
	var (
		models []string
		queues = make(map[string][]state.Unit)
	)
	for _, unit := range units {
		if _, ok := queues[unit.ModelID]; !ok {
			models = append(models, unit.ModelID)
		}
		queues[unit.ModelID] = append(queues[unit.ModelID], unit)
	}
	if size <= 0 || size > len(models) {
		size = len(models)
	}

	var (
		batches   [][]state.Unit
		remaining = len(units)
		next      = 0
	)
	for remaining > 0 {
		batch := make([]state.Unit, 0, size)
		for scanned := 0; scanned < len(models) && len(batch) < size; scanned++ {
			model := models[(next+scanned)%len(models)]
			queue := queues[model]
			if len(queue) == 0 {
				continue
			}
			batch = append(batch, queue[0])
			queues[model] = queue[1:]
			remaining--
			if len(batch) == size {
				next = (next + scanned + 1) % len(models)
			}
		}
		batches = append(batches, batch)
	}
	return batches
}
