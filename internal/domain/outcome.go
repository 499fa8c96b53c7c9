package domain

import "fmt"

// UpsertOutcome summarises one persistence batch.
// Inserted + Updated + Failed always equals the number of submitted records.
type UpsertOutcome struct {
	Inserted int
	Updated  int
	Failed   int
	Errors   []string
}

// Submitted is the number of records the batch contained.
func (o UpsertOutcome) Submitted() int {
	return o.Inserted + o.Updated + o.Failed
}

// Processed counts records that were written successfully.
func (o UpsertOutcome) Processed() int {
	return o.Inserted + o.Updated
}

// RecordFailure counts a failed record and keeps its message.
func (o *UpsertOutcome) RecordFailure(key string, err error) {
	o.Failed++
	o.Errors = append(o.Errors, fmt.Sprintf("%s: %v", key, err))
}

// Add folds another outcome into o.
func (o *UpsertOutcome) Add(other UpsertOutcome) {
	o.Inserted += other.Inserted
	o.Updated += other.Updated
	o.Failed += other.Failed
	o.Errors = append(o.Errors, other.Errors...)
}

func (o UpsertOutcome) String() string {
	return fmt.Sprintf("inserted=%d updated=%d failed=%d", o.Inserted, o.Updated, o.Failed)
}
