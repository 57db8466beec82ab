// Package publish writes a run's output files into place. Files are first
// written and synced inside a staging directory next to the targets, then
// renamed over them, so readers never see a half-written file and a failed run
// leaves the previous outputs alone.
//
// The set is promoted one rename at a time. The previous files are kept as
// hard links (or copies) until promotion completes, and a failed rename puts
// back every file already replaced. A crash in the middle of the rename loop
// can still leave a mixed set until the next run.
package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/John-Robertt/clashsub/internal/model"
)

type File struct {
	Name string
	Data []byte
}

type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string { return model.FormatError(e.AppError, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

func fail(code, message, path string, cause error) *Error {
	return &Error{
		AppError: model.AppError{Code: code, Message: message, Stage: "publish", URL: path},
		Cause:    cause,
	}
}

const stagingPrefix = ".staging-"

// writeFile and rename are swapped in tests to inject failures.
var (
	writeFile = writeSynced
	rename    = os.Rename
)

// Write publishes files into dir, creating dir if needed.
func Write(dir string, files []File) error {
	if strings.TrimSpace(dir) == "" {
		return fail("INVALID_ARGUMENT", "输出目录不能为空", dir, nil)
	}
	if err := checkNames(files); err != nil {
		return fail("INVALID_ARGUMENT", "输出文件名不合法", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("PUBLISH_FAILED", "创建输出目录失败", dir, err)
	}

	staging := filepath.Join(dir, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o700); err != nil {
		return fail("PUBLISH_FAILED", "创建暂存目录失败", dir, err)
	}
	defer os.RemoveAll(staging)

	for _, f := range files {
		if err := writeFile(filepath.Join(staging, f.Name), f.Data, 0o644); err != nil {
			return fail("PUBLISH_FAILED", "写入暂存文件失败", f.Name, err)
		}
	}
	if err := syncDir(staging); err != nil {
		return fail("PUBLISH_FAILED", "同步暂存目录失败", dir, err)
	}

	backup := staging + ".prev"
	if err := os.Mkdir(backup, 0o700); err != nil {
		return fail("PUBLISH_FAILED", "创建备份目录失败", dir, err)
	}
	defer os.RemoveAll(backup)
	saved := make(map[string]bool, len(files))
	for _, f := range files {
		ok, err := keep(filepath.Join(dir, f.Name), filepath.Join(backup, f.Name))
		if err != nil {
			return fail("PUBLISH_FAILED", "备份旧输出文件失败", f.Name, err)
		}
		saved[f.Name] = ok
	}

	for i, f := range files {
		if err := rename(filepath.Join(staging, f.Name), filepath.Join(dir, f.Name)); err != nil {
			restore(dir, backup, files[:i], saved)
			return fail("PUBLISH_FAILED", "替换输出文件失败", f.Name, err)
		}
	}
	if err := syncDir(dir); err != nil {
		return fail("PUBLISH_FAILED", "同步输出目录失败", dir, err)
	}
	return nil
}

func checkNames(files []File) error {
	if len(files) == 0 {
		return fmt.Errorf("no files")
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := f.Name
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("invalid file name %q", name)
		}
		if strings.HasPrefix(name, stagingPrefix) {
			return fmt.Errorf("reserved file name %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate file name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// keep preserves the current target at path as dst. It reports false when
// there is no current target.
func keep(path, dst string) (bool, error) {
	err := os.Link(path, dst)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return false, rerr
	}
	return true, writeSynced(dst, data, 0o644)
}

// restore undoes the promotion of files. Errors are ignored: the caller is
// already failing and the backups are the best state left.
func restore(dir, backup string, files []File, saved map[string]bool) {
	for _, f := range files {
		target := filepath.Join(dir, f.Name)
		if saved[f.Name] {
			_ = os.Rename(filepath.Join(backup, f.Name), target)
		} else {
			_ = os.Remove(target)
		}
	}
	_ = syncDir(dir)
}

func writeSynced(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories.
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	return nil
}
