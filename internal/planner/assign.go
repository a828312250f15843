package planner

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// Assign returns the contiguous run of defs owned by task out of
// totalTasks. When defs do not divide evenly the first len(defs)%totalTasks
// tasks receive one extra definition. defs should already be sorted.
func Assign(defs []*split.PartitionDefinition, task, totalTasks int) ([]*split.PartitionDefinition, error) {
	if totalTasks <= 0 {
		return nil, serrors.NewValidationError(serrors.CodeInvalidWorkers,
			fmt.Sprintf("total tasks must be > 0, got %d", totalTasks))
	}
	if task < 0 || task >= totalTasks {
		return nil, serrors.NewValidationError(serrors.CodeInvalidWorkers,
			fmt.Sprintf("task %d out of range [0, %d)", task, totalTasks))
	}

	per := len(defs) / totalTasks
	rem := len(defs) % totalTasks
	offset := per*task + min(task, rem)
	count := per
	if task < rem {
		count++
	}
	return defs[offset : offset+count], nil
}

// WorkerFor maps a definition to a worker by hashing its identity key with
// murmur3. The result depends only on the key, so every process agrees.
// It returns -1 when workers is not positive.
func WorkerFor(d *split.PartitionDefinition, workers int) int {
	if workers <= 0 {
		return -1
	}
	return int(murmur3.Sum32([]byte(d.Key())) % uint32(workers))
}

// AssignByHash groups defs by WorkerFor. The returned slice has one entry
// per worker, each in the input order.
func AssignByHash(defs []*split.PartitionDefinition, workers int) ([][]*split.PartitionDefinition, error) {
	if workers <= 0 {
		return nil, serrors.NewValidationError(serrors.CodeInvalidWorkers,
			fmt.Sprintf("workers must be > 0, got %d", workers))
	}
	groups := make([][]*split.PartitionDefinition, workers)
	for _, d := range defs {
		w := WorkerFor(d, workers)
		groups[w] = append(groups[w], d)
	}
	return groups, nil
}
