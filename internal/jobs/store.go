package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the persistence layer: one JSON file per job record under
// <data>/jobs, one newline-delimited event log per job under
// <data>/events. Writes are atomic (temp file + rename); the store
// does not interpret record contents beyond the id used to name files
// and the createdAt used to order List.
type Store struct {
	jobsDir   string
	eventsDir string
}

// NewStore creates the jobs and events directories under dataDir if
// they do not already exist.
func NewStore(dataDir string) (*Store, error) {
	jobsDir := filepath.Join(dataDir, "jobs")
	eventsDir := filepath.Join(dataDir, "events")
	blobsDir := filepath.Join(dataDir, "blobs")

	for _, d := range []string{jobsDir, eventsDir, blobsDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", d, err)
		}
	}

	return &Store{jobsDir: jobsDir, eventsDir: eventsDir}, nil
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.jobsDir, id+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.jobsDir, id+".lock")
}

func (s *Store) eventLogPath(id string) string {
	return filepath.Join(s.eventsDir, id+".jsonl")
}

// Read loads the job record for id. Returns ErrNotFound if it does
// not exist.
func (s *Store) Read(id string) (*Job, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", id, err)
	}
	return &job, nil
}

// WriteAtomic serializes job and renames it over the canonical record
// path, so readers never observe a partial write. A crash mid-write
// leaves either the previous record or a stray temp file, which the
// next write supersedes and List ignores.
func (s *Store) WriteAtomic(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	target := s.recordPath(job.ID)
	tmp := fmt.Sprintf("%s.tmp.%d", target, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file for job %s: %w", job.ID, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file for job %s: %w", job.ID, err)
	}

	return nil
}

// AppendEvent appends one serialized event line to the job's event
// log. Concurrent appends from different jobs never interleave
// because each is a distinct file; appends for the same job rely on
// a single small write staying below the OS atomic-write threshold.
func (s *Store) AppendEvent(id string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event for job %s: %w", id, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.eventLogPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open event log for job %s: %w", id, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append event for job %s: %w", id, err)
	}
	return nil
}

// List enumerates all canonical job records (".json" suffix only;
// stray ".tmp.*" and ".lock" files are ignored) and parses each. A
// single unreadable or unparsable record is skipped rather than
// aborting the whole listing.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.jobsDir)
	if err != nil {
		return nil, fmt.Errorf("list jobs dir: %w", err)
	}

	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		id := strings.TrimSuffix(name, ".json")
		job, err := s.Read(id)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt < jobs[j].CreatedAt })
	return jobs, nil
}
