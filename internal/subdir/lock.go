package subdir

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
)

// lockRelPath is relative to the container's .git directory, keeping the
// lock file out of the working tree entirely.
const lockRelPath = "git-subdir.lock"

// lockRecord is the structured body written into the lock file, so a
// caller that fails to acquire it can report who holds it rather than
// just "try again later".
type lockRecord struct {
	PID       int       `toml:"pid"`
	Op        string    `toml:"op"`
	Subdir    string    `toml:"subdir"`
	StartedAt time.Time `toml:"started_at"`
}

// Lock is a held advisory lock on one container repository. Release must
// be called to give it up; it is not safe for concurrent use across
// goroutines, since only one subdir operation runs against a container
// at a time.
type Lock struct {
	file *os.File
}

// Acquire takes the container-wide advisory lock for the duration of op
// on subdir, or returns a descriptive error naming the PID/op already
// holding it. status never calls this, since it only reads.
func Acquire(repoRoot, op, subdir string) (*Lock, error) {
	path := filepath.Join(repoRoot, ".git", lockRelPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readLockRecord(f)
		f.Close()
		if holder != nil {
			return nil, fmt.Errorf("another git-subdir operation (%s on %s, pid %d, started %s) holds the lock",
				holder.Op, holder.Subdir, holder.PID, holder.StartedAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("lock held by another process: %w", err)
	}

	rec := lockRecord{PID: os.Getpid(), Op: op, Subdir: subdir, StartedAt: time.Now()}
	if err := writeLockRecord(f, rec); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}

	return &Lock{file: f}, nil
}

// Release gives up the lock and truncates the record.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func writeLockRecord(f *os.File, rec lockRecord) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode lock record: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Write(buf.Bytes())
	return err
}

func readLockRecord(f *os.File) *lockRecord {
	if _, err := f.Seek(0, 0); err != nil {
		return nil
	}
	var rec lockRecord
	if _, err := toml.NewDecoder(f).Decode(&rec); err != nil {
		return nil
	}
	if rec.PID == 0 {
		return nil
	}
	return &rec
}
