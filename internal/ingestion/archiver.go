package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ErrDestinationExists is returned when the archive already holds a file with the same name.
var ErrDestinationExists = errors.New("destination already exists")

// MoveFile moves name from sourceDir into targetDir keeping its name. An existing file in the
// target is never overwritten. When the directories live on different devices the file is
// copied and the source removed.
func MoveFile(sourceDir, targetDir, name string) error {
	src := filepath.Join(sourceDir, name)
	dst := filepath.Join(targetDir, name)

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("error moving %s: %w", name, ErrDestinationExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking %s: %w", dst, err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("error moving %s: %w", name, err)
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("error copying %s across devices: %w", name, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("error removing %s after copy: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
