package migrate

import "fmt"

// ConnectionError reports a failure to open the database file or apply
// its connection pragmas. Nothing has been mutated when it is returned.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StepError reports a SQL failure in one of the migration steps. Step
// holds the step name ("backup", "migrate data", ...).
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// VerificationError reports that the aircraft table is empty after the
// copy completed, meaning the migration produced no usable registry.
type VerificationError struct {
	AircraftRows int64
	BackupRows   int64
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("migration failed - no records in new table (backup has %d rows)", e.BackupRows)
}
