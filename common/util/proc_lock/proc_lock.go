package proc_lock

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
)

// WorkerLockFile returns the lock file path for a worker bound to the named
// service. At most one worker per service may run on a host at a time.
func WorkerLockFile(service string) string {
	return filepath.Join(lockFileDir, "listenup-worker-"+service+"-lock-file")
}

// GetLockFilePid returns the PID of the process currently holding the lock defined by filename, or zero if
// no process currently holds the lock.
func GetLockFilePid(filename string) (pid int, err error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return 0, err
	}

	pid, err = strconv.Atoi(string(contents))
	return pid, err
}
