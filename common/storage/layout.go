package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/templates"
)

const (
	usersDirName   = "users"
	jobsDirName    = "jobs"
	uploadsDirName = "uploads"

	dirMode = 0700
)

// StorageRoot is the filesystem prefix under which all job artifacts live,
// forming a path namespace shared by the orchestrator and every worker.
type StorageRoot string

func (s StorageRoot) String() string {
	return string(s)
}

// Layout computes and pre-creates the canonical directory tree under the
// storage root:
//
//	STORAGE_ROOT/
//	  users/<user_id>/
//	    uploads/[folder/]<file>
//	    jobs/<job_id>/
//	      <composite_name>/...
//
// Layout only ever creates directories, never files.
type Layout struct {
	root string
	logger.Log
}

func NewLayout(root StorageRoot, logFactory logger.LogFactory) *Layout {
	return &Layout{
		root: filepath.Clean(string(root)),
		Log:  logFactory("StorageLayout"),
	}
}

func (l *Layout) Root() string {
	return l.root
}

func (l *Layout) UserDir(userID models.UserID) string {
	return filepath.Join(l.root, usersDirName, userID.String())
}

// UploadsDir returns the asset upload directory for a user, optionally
// nested under a folder.
func (l *Layout) UploadsDir(userID models.UserID, folder string) string {
	return filepath.Join(l.UserDir(userID), uploadsDirName, folder)
}

func (l *Layout) JobDir(userID models.UserID, jobID models.JobID) string {
	return filepath.Join(l.UserDir(userID), jobsDirName, jobID.String())
}

// StepDir returns the canonical output directory for a step, named by the
// step's composite name.
func (l *Layout) StepDir(userID models.UserID, jobID models.JobID, compositeName string) string {
	return filepath.Join(l.JobDir(userID, jobID), compositeName)
}

// AbsolutePath returns the absolute path for a storage-relative path. A path
// that is already absolute passes through unchanged; a relative path is
// rooted under the storage root and must not escape it.
func (l *Layout) AbsolutePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absolute := filepath.Clean(filepath.Join(l.root, path))
	if !l.ContainsPath(absolute) {
		return "", errors.Errorf("error path %q escapes the storage root", path)
	}
	return absolute, nil
}

// RelativePath returns the storage-relative form of an absolute path under
// the root.
func (l *Layout) RelativePath(absolute string) (string, error) {
	if !l.ContainsPath(absolute) {
		return "", errors.Errorf("error path %q is not under the storage root", absolute)
	}
	rel, err := filepath.Rel(l.root, absolute)
	if err != nil {
		return "", errors.Wrapf(err, "error computing relative path for %q", absolute)
	}
	return rel, nil
}

// ContainsPath returns true if the given absolute path lies within the
// storage root.
func (l *Layout) ContainsPath(absolute string) bool {
	return absolute == l.root || strings.HasPrefix(absolute, l.root+string(os.PathSeparator))
}

// PrepareJobDirs pre-creates every step's composite-named directory and the
// parent directory implied by each declared output path, after template
// resolution. Failures are logged and skipped rather than failing the job; a
// later step that cannot write will fail loudly at that point.
func (l *Layout) PrepareJobDirs(job *models.Job) {
	if !job.UserID.Valid() {
		l.Warnf("Cannot prepare job directories: job %s has no user id", job.ID)
		return
	}
	for _, step := range job.Steps {
		stepDir := l.StepDir(job.UserID, job.ID, step.CompositeName())
		if err := os.MkdirAll(stepDir, dirMode); err != nil {
			l.Warnf("Failed to create step directory %q: %v", stepDir, err)
		}
		for name, outputPath := range step.Outputs {
			resolved, err := templates.Resolve(outputPath, job, step)
			if err != nil {
				l.Warnf("Failed to resolve output %q of step %q: %v", name, step.Name, err)
				continue
			}
			absolute, err := l.AbsolutePath(resolved)
			if err != nil {
				l.Tracef("Skipping output %q of step %q outside the storage root", name, step.Name)
				continue
			}
			if !l.ContainsPath(absolute) {
				// Absolute output paths outside the root are not ours to create
				l.Tracef("Skipping output %q of step %q outside the storage root", name, step.Name)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(absolute), dirMode); err != nil {
				l.Warnf("Failed to create directory for output %q of step %q: %v", name, step.Name, err)
			}
		}
	}
}
